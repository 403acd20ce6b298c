package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"boigordo/internal/core/id"
	"boigordo/internal/domain/ledger"
	"boigordo/internal/infrastructure/http/v1/dto"
)

// RecordService is the ledger API used by RecordHandler.
type RecordService interface {
	Create(ctx context.Context, in ledger.CreateInput) (*ledger.Record, error)
	Get(ctx context.Context, recordID id.ID) (*ledger.Record, error)
	List(ctx context.Context, f ledger.Filter) ([]ledger.Record, error)
	Settle(ctx context.Context, recordID id.ID, at time.Time, accountID *id.ID) (*ledger.Record, error)
	Reconcile(ctx context.Context, recordID id.ID) (*ledger.ReconcileResult, error)
}

// RecordHandler serves /monetary-records.
type RecordHandler struct {
	*BaseHandler
	service RecordService
	now     func() time.Time
}

// NewRecordHandler creates a record handler.
func NewRecordHandler(base *BaseHandler, service RecordService) *RecordHandler {
	return &RecordHandler{BaseHandler: base, service: service, now: func() time.Time { return time.Now().UTC() }}
}

// Create handles POST /monetary-records. The record and its allocations are
// written together or not at all.
func (h *RecordHandler) Create(c *gin.Context) {
	var req dto.CreateRecordRequest
	if !h.BindJSON(c, &req) {
		return
	}
	rec, err := h.service.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, rec)
}

// List handles GET /monetary-records.
func (h *RecordHandler) List(c *gin.Context) {
	var req dto.ListRecordsRequest
	if !h.BindQuery(c, &req) {
		return
	}
	f, err := req.ToFilter()
	if err != nil {
		h.Invalid(c, "filter", err)
		return
	}
	records, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(records, dto.PageRequest{Limit: f.Limit, Offset: f.Offset}))
}

// Get handles GET /monetary-records/:id.
func (h *RecordHandler) Get(c *gin.Context) {
	recordID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	rec, err := h.service.Get(c.Request.Context(), recordID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// Settle handles POST /monetary-records/:id/settle.
func (h *RecordHandler) Settle(c *gin.Context) {
	recordID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.SettleRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	at := h.now()
	if t := req.SettledAt.TimePtr(); t != nil {
		at = *t
	}
	rec, err := h.service.Settle(c.Request.Context(), recordID, at, req.AccountID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// Reconcile handles POST /monetary-records/:id/reconcile.
func (h *RecordHandler) Reconcile(c *gin.Context) {
	recordID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	res, err := h.service.Reconcile(c.Request.Context(), recordID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
