package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"boigordo/internal/core/id"
	"boigordo/internal/domain/reconcile"
	"boigordo/internal/infrastructure/http/v1/dto"
)

// ReconcileService scans and cleans up the ledger.
type ReconcileService interface {
	Scan(ctx context.Context) (*reconcile.Report, error)
	Cleanup(ctx context.Context, ids []id.ID, reason string) (*reconcile.CleanupResult, error)
}

// ReconcileHandler serves the reconciliation report and cleanup.
type ReconcileHandler struct {
	*BaseHandler
	service ReconcileService
}

// NewReconcileHandler creates a reconciliation handler.
func NewReconcileHandler(base *BaseHandler, service ReconcileService) *ReconcileHandler {
	return &ReconcileHandler{BaseHandler: base, service: service}
}

// Report handles GET /reconciliation-report. Findings are warnings, never errors.
func (h *ReconcileHandler) Report(c *gin.Context) {
	report, err := h.service.Scan(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// Cleanup handles POST /reconciliation/cleanup.
func (h *ReconcileHandler) Cleanup(c *gin.Context) {
	var req dto.CleanupRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.Cleanup(c.Request.Context(), req.RecordIDs, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
