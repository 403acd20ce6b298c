package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/cashflow"
	"boigordo/internal/domain/category"
	"boigordo/internal/domain/costcenter"
	"boigordo/internal/infrastructure/http/v1/dto"
)

// CategoryService manages versioned category mappings.
type CategoryService interface {
	List(ctx context.Context) ([]category.Mapping, error)
	AddVersion(ctx context.Context, m category.Mapping) (*category.Mapping, error)
}

// CostCenterService manages the cost center tree.
type CostCenterService interface {
	Create(ctx context.Context, in costcenter.CreateInput) (*costcenter.CostCenter, error)
	Tree(ctx context.Context) ([]*costcenter.Node, error)
	Summary(ctx context.Context, centerID id.ID, month types.Month) (*costcenter.Subtotal, error)
}

// CashFlowService summarizes realized movements.
type CashFlowService interface {
	Summary(ctx context.Context, month types.Month) (*cashflow.Summary, error)
}

// CatalogHandler serves category mappings, cost centers and the cash flow summary.
type CatalogHandler struct {
	*BaseHandler
	categories  CategoryService
	costCenters CostCenterService
	cashFlow    CashFlowService
}

// NewCatalogHandler creates a catalog handler.
func NewCatalogHandler(base *BaseHandler, categories CategoryService, costCenters CostCenterService, cashFlow CashFlowService) *CatalogHandler {
	return &CatalogHandler{BaseHandler: base, categories: categories, costCenters: costCenters, cashFlow: cashFlow}
}

// ListCategoryMappings handles GET /category-mappings, including closed versions.
func (h *CatalogHandler) ListCategoryMappings(c *gin.Context) {
	mappings, err := h.categories.List(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(mappings, dto.PageRequest{}))
}

// AddCategoryMapping handles POST /category-mappings. The previous version of
// the category is closed at the new version's effective date.
func (h *CatalogHandler) AddCategoryMapping(c *gin.Context) {
	var req dto.CategoryMappingRequest
	if !h.BindJSON(c, &req) {
		return
	}
	m, err := h.categories.AddVersion(c.Request.Context(), req.ToMapping())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, m)
}

// CostCenterTree handles GET /cost-centers.
func (h *CatalogHandler) CostCenterTree(c *gin.Context) {
	tree, err := h.costCenters.Tree(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(tree, dto.PageRequest{}))
}

// CreateCostCenter handles POST /cost-centers.
func (h *CatalogHandler) CreateCostCenter(c *gin.Context) {
	var req dto.CreateCostCenterRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cc, err := h.costCenters.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, cc)
}

// CostCenterSummary handles GET /cost-centers/:id/summary?month=YYYY-MM.
func (h *CatalogHandler) CostCenterSummary(c *gin.Context) {
	centerID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	month, ok := h.month(c)
	if !ok {
		return
	}
	sub, err := h.costCenters.Summary(c.Request.Context(), centerID, month)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, sub)
}

// CashFlowSummary handles GET /cash-flow/summary?month=YYYY-MM.
func (h *CatalogHandler) CashFlowSummary(c *gin.Context) {
	month, ok := h.month(c)
	if !ok {
		return
	}
	sum, err := h.cashFlow.Summary(c.Request.Context(), month)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, sum)
}

func (h *CatalogHandler) month(c *gin.Context) (types.Month, bool) {
	var req dto.MonthRequest
	if !h.BindQuery(c, &req) {
		return types.Month{}, false
	}
	m, err := types.ParseMonth(req.Month)
	if err != nil {
		h.Invalid(c, "month", err)
		return types.Month{}, false
	}
	return m, true
}
