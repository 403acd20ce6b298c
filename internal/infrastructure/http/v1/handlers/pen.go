package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"boigordo/internal/core/id"
	"boigordo/internal/domain/mortality"
	"boigordo/internal/domain/pen"
	"boigordo/internal/infrastructure/http/v1/dto"
)

// PenService is the pen API used by PenHandler.
type PenService interface {
	Create(ctx context.Context, code string, capacity int) (*pen.Pen, error)
	Get(ctx context.Context, penID id.ID) (*pen.Pen, error)
	List(ctx context.Context) ([]pen.Pen, error)
	Place(ctx context.Context, penID, lotID id.ID, quantity int, at time.Time) (*pen.Link, error)
	Release(ctx context.Context, linkID id.ID, at time.Time) error
	AverageCostPerHead(ctx context.Context, penID id.ID, at time.Time) (*pen.AverageCost, error)
}

// PenMortality records deaths in a pen.
type PenMortality interface {
	RecordPenMortality(ctx context.Context, penID id.ID, deathDate time.Time, quantity int, cause string) ([]mortality.Record, error)
}

// PenHandler serves /pens.
type PenHandler struct {
	*BaseHandler
	pens      PenService
	mortality PenMortality
	now       func() time.Time
}

// NewPenHandler creates a pen handler.
func NewPenHandler(base *BaseHandler, pens PenService, m PenMortality) *PenHandler {
	return &PenHandler{BaseHandler: base, pens: pens, mortality: m, now: func() time.Time { return time.Now().UTC() }}
}

// Create handles POST /pens.
func (h *PenHandler) Create(c *gin.Context) {
	var req dto.CreatePenRequest
	if !h.BindJSON(c, &req) {
		return
	}
	p, err := h.pens.Create(c.Request.Context(), req.Code, req.Capacity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, p)
}

// List handles GET /pens.
func (h *PenHandler) List(c *gin.Context) {
	pens, err := h.pens.List(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(pens, dto.PageRequest{}))
}

// Get handles GET /pens/:id.
func (h *PenHandler) Get(c *gin.Context) {
	penID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	p, err := h.pens.Get(c.Request.Context(), penID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// Place handles POST /pens/:id/placements.
func (h *PenHandler) Place(c *gin.Context) {
	penID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.PlacementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	link, err := h.pens.Place(c.Request.Context(), penID, req.LotID, req.Quantity, h.dateOrNow(req.At))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, link)
}

// Release handles POST /pens/placements/:linkId/release.
func (h *PenHandler) Release(c *gin.Context) {
	linkID, ok := h.ParamID(c, "linkId")
	if !ok {
		return
	}
	var req dto.ReleaseRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	if err := h.pens.Release(c.Request.Context(), linkID, h.dateOrNow(req.At)); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Mortality handles POST /pens/:id/mortality.
func (h *PenHandler) Mortality(c *gin.Context) {
	penID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.PenMortalityRequest
	if !h.BindJSON(c, &req) {
		return
	}
	records, err := h.mortality.RecordPenMortality(c.Request.Context(), penID, req.DeathDate.Time, req.Quantity, req.Cause)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.NewListResponse(records, dto.PageRequest{}))
}

// AverageCost handles GET /pens/:id/average-cost.
func (h *PenHandler) AverageCost(c *gin.Context) {
	penID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.AverageCostRequest
	if !h.BindQuery(c, &req) {
		return
	}
	at := h.now()
	if t := req.At.TimePtr(); t != nil {
		at = *t
	}
	avg, err := h.pens.AverageCostPerHead(c.Request.Context(), penID, at)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, avg)
}

func (h *PenHandler) dateOrNow(d dto.Date) time.Time {
	if d.IsZero() {
		return h.now()
	}
	return d.Time
}
