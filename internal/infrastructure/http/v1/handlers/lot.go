package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"boigordo/internal/core/id"
	"boigordo/internal/domain/lot"
	"boigordo/internal/domain/lotcost"
	"boigordo/internal/infrastructure/http/v1/dto"
)

// LotService is the lot API used by LotHandler.
type LotService interface {
	Create(ctx context.Context, in lot.CreateInput) (*lot.Lot, error)
	Get(ctx context.Context, lotID id.ID) (*lot.Lot, error)
	List(ctx context.Context, f lot.Filter) ([]lot.Lot, error)
	Transition(ctx context.Context, lotID id.ID, to lot.Status) (*lot.Lot, error)
}

// LotCostService serves lot cost breakdowns.
type LotCostService interface {
	Breakdown(ctx context.Context, lotID id.ID) (*lotcost.Breakdown, error)
	VerifyLotCost(ctx context.Context, lotID id.ID) (*lotcost.Drift, error)
}

// LotHandler serves /lots.
type LotHandler struct {
	*BaseHandler
	lots  LotService
	costs LotCostService
}

// NewLotHandler creates a lot handler.
func NewLotHandler(base *BaseHandler, lots LotService, costs LotCostService) *LotHandler {
	return &LotHandler{BaseHandler: base, lots: lots, costs: costs}
}

// Create handles POST /lots.
func (h *LotHandler) Create(c *gin.Context) {
	var req dto.CreateLotRequest
	if !h.BindJSON(c, &req) {
		return
	}
	l, err := h.lots.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, l)
}

// List handles GET /lots.
func (h *LotHandler) List(c *gin.Context) {
	var req dto.ListLotsRequest
	if !h.BindQuery(c, &req) {
		return
	}
	f := req.ToFilter()
	lots, err := h.lots.List(c.Request.Context(), f)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(lots, dto.PageRequest{Limit: f.Limit, Offset: f.Offset}))
}

// Get handles GET /lots/:id.
func (h *LotHandler) Get(c *gin.Context) {
	lotID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	l, err := h.lots.Get(c.Request.Context(), lotID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, l)
}

// Transition handles POST /lots/:id/status.
func (h *LotHandler) Transition(c *gin.Context) {
	lotID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.TransitionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	l, err := h.lots.Transition(c.Request.Context(), lotID, req.Status)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, l)
}

// CostBreakdown handles GET /lots/:id/cost-breakdown.
func (h *LotHandler) CostBreakdown(c *gin.Context) {
	lotID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	b, err := h.costs.Breakdown(c.Request.Context(), lotID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, b)
}

// CostVerification handles GET /lots/:id/cost-verification.
func (h *LotHandler) CostVerification(c *gin.Context) {
	lotID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	d, err := h.costs.VerifyLotCost(c.Request.Context(), lotID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, d)
}
