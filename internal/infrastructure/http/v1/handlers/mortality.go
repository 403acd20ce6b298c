package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"boigordo/internal/core/id"
	"boigordo/internal/domain/mortality"
	"boigordo/internal/infrastructure/http/v1/dto"
)

// MortalityService is the mortality API used by MortalityHandler.
type MortalityService interface {
	RecordMortality(ctx context.Context, in mortality.RecordInput) (*mortality.Record, error)
	Compensate(ctx context.Context, recordID id.ID, reason string) (*mortality.Record, error)
}

// MortalityHandler serves /mortality-records.
type MortalityHandler struct {
	*BaseHandler
	service MortalityService
}

// NewMortalityHandler creates a mortality handler.
func NewMortalityHandler(base *BaseHandler, service MortalityService) *MortalityHandler {
	return &MortalityHandler{BaseHandler: base, service: service}
}

// Create handles POST /mortality-records.
func (h *MortalityHandler) Create(c *gin.Context) {
	var req dto.CreateMortalityRequest
	if !h.BindJSON(c, &req) {
		return
	}
	rec, err := h.service.RecordMortality(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, rec)
}

// Compensate handles POST /mortality-records/:id/compensate.
func (h *MortalityHandler) Compensate(c *gin.Context) {
	recordID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.CompensateRequest
	if !h.BindJSON(c, &req) {
		return
	}
	rec, err := h.service.Compensate(c.Request.Context(), recordID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, rec)
}
