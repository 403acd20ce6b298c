package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"boigordo/internal/core/id"
	"boigordo/internal/domain/sale"
	"boigordo/internal/infrastructure/http/v1/dto"
)

// SaleService is the sale API used by SaleHandler.
type SaleService interface {
	Create(ctx context.Context, in sale.CreateInput) (*sale.Result, error)
	Get(ctx context.Context, saleID id.ID) (*sale.Sale, error)
}

// SaleHandler serves /sales.
type SaleHandler struct {
	*BaseHandler
	service SaleService
}

// NewSaleHandler creates a sale handler.
func NewSaleHandler(base *BaseHandler, service SaleService) *SaleHandler {
	return &SaleHandler{BaseHandler: base, service: service}
}

// Create handles POST /sales.
func (h *SaleHandler) Create(c *gin.Context) {
	var req dto.CreateSaleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// Get handles GET /sales/:id.
func (h *SaleHandler) Get(c *gin.Context) {
	saleID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	s, err := h.service.Get(c.Request.Context(), saleID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, s)
}
