package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"boigordo/internal/core/types"
	"boigordo/internal/domain/scope"
	"boigordo/internal/domain/statement"
	"boigordo/internal/infrastructure/export"
	"boigordo/internal/infrastructure/http/v1/dto"
)

// StatementService serves period statements.
type StatementService interface {
	Get(ctx context.Context, month types.Month, sc scope.Scope) (*statement.Statement, error)
	Perpetual(ctx context.Context, from, to types.Month, sc scope.Scope) (*statement.PerpetualReport, error)
}

// StatementHandler serves /statements.
type StatementHandler struct {
	*BaseHandler
	service StatementService
}

// NewStatementHandler creates a statement handler.
func NewStatementHandler(base *BaseHandler, service StatementService) *StatementHandler {
	return &StatementHandler{BaseHandler: base, service: service}
}

// Get handles GET /statements?month=YYYY-MM&scope=GLOBAL|LOT:{id}|PEN:{id}.
// A stale stored statement is regenerated before it is returned.
func (h *StatementHandler) Get(c *gin.Context) {
	var req dto.StatementRequest
	if !h.BindQuery(c, &req) {
		return
	}
	month, sc, err := req.Parse()
	if err != nil {
		h.Invalid(c, "statement query", err)
		return
	}
	st, err := h.service.Get(c.Request.Context(), month, sc)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, st)
}

// Perpetual handles GET /statements/perpetual.
func (h *StatementHandler) Perpetual(c *gin.Context) {
	report, ok := h.perpetual(c)
	if !ok {
		return
	}
	h.OK(c, report)
}

// Export handles GET /statements/export and returns the perpetual report as xlsx.
func (h *StatementHandler) Export(c *gin.Context) {
	report, ok := h.perpetual(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WritePerpetual(&buf, report); err != nil {
		h.Error(c, err)
		return
	}
	name := fmt.Sprintf("dre_%s_%s_%s.xlsx", report.Scope, report.From, report.To)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, export.ContentTypeXLSX, buf.Bytes())
}

func (h *StatementHandler) perpetual(c *gin.Context) (*statement.PerpetualReport, bool) {
	var req dto.PerpetualRequest
	if !h.BindQuery(c, &req) {
		return nil, false
	}
	from, to, sc, err := req.Parse()
	if err != nil {
		h.Invalid(c, "perpetual query", err)
		return nil, false
	}
	report, err := h.service.Perpetual(c.Request.Context(), from, to, sc)
	if err != nil {
		h.Error(c, err)
		return nil, false
	}
	return report, true
}
