// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	appctx "boigordo/internal/core/context"
	"boigordo/internal/infrastructure/http/v1/handlers"
	"boigordo/internal/infrastructure/http/v1/middleware"
	"boigordo/pkg/logger"
)

// Services are the domain services the API exposes.
type Services struct {
	Records     handlers.RecordService
	Lots        handlers.LotService
	LotCosts    handlers.LotCostService
	Pens        handlers.PenService
	Sales       handlers.SaleService
	Mortality   MortalityService
	Reconcile   handlers.ReconcileService
	Statements  handlers.StatementService
	Categories  handlers.CategoryService
	CostCenters handlers.CostCenterService
	CashFlow    handlers.CashFlowService
}

// MortalityService records deaths per lot or per pen.
type MortalityService interface {
	handlers.MortalityService
	handlers.PenMortality
}

// Metrics instruments HTTP traffic and exposes the scrape endpoint.
type Metrics interface {
	Middleware() gin.HandlerFunc
	Handler() gin.HandlerFunc
}

// RouterConfig holds router configuration.
type RouterConfig struct {
	Logger       *logger.Logger
	JWTValidator middleware.JWTValidator
	Idempotency  middleware.IdempotencyStore
	Health       map[string]handlers.Pinger
	Metrics      Metrics
	Services     Services
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// ErrorHandler wraps Recovery so recovered panics are rendered.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
		router.GET("/metrics", cfg.Metrics.Handler())
	}

	healthHandler := handlers.NewHealthHandler(cfg.Health)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTValidator))
	if cfg.Idempotency != nil {
		api.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	registerLedgerRoutes(api, base, cfg.Services)
	registerHerdRoutes(api, base, cfg.Services)
	registerReportRoutes(api, base, cfg.Services)
	registerCatalogRoutes(api, base, cfg.Services)

	return router
}

func registerLedgerRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, s Services) {
	h := handlers.NewRecordHandler(base, s.Records)
	records := rg.Group("/monetary-records")
	records.GET("", h.List)
	records.POST("", h.Create)
	records.GET("/:id", h.Get)
	records.POST("/:id/settle", h.Settle)
	records.POST("/:id/reconcile", h.Reconcile)
}

func registerHerdRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, s Services) {
	lots := handlers.NewLotHandler(base, s.Lots, s.LotCosts)
	lg := rg.Group("/lots")
	lg.GET("", lots.List)
	lg.POST("", lots.Create)
	lg.GET("/:id", lots.Get)
	lg.POST("/:id/status", lots.Transition)
	lg.GET("/:id/cost-breakdown", lots.CostBreakdown)
	lg.GET("/:id/cost-verification", lots.CostVerification)

	pens := handlers.NewPenHandler(base, s.Pens, s.Mortality)
	pg := rg.Group("/pens")
	pg.GET("", pens.List)
	pg.POST("", pens.Create)
	pg.GET("/:id", pens.Get)
	pg.POST("/:id/placements", pens.Place)
	pg.POST("/:id/mortality", pens.Mortality)
	pg.GET("/:id/average-cost", pens.AverageCost)
	rg.POST("/pen-placements/:linkId/release", pens.Release)

	sales := handlers.NewSaleHandler(base, s.Sales)
	rg.POST("/sales", sales.Create)
	rg.GET("/sales/:id", sales.Get)

	mortality := handlers.NewMortalityHandler(base, s.Mortality)
	rg.POST("/mortality-records", mortality.Create)
	rg.POST("/mortality-records/:id/compensate", mortality.Compensate)
}

func registerReportRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, s Services) {
	statements := handlers.NewStatementHandler(base, s.Statements)
	sg := rg.Group("/statements")
	sg.GET("", statements.Get)
	sg.GET("/perpetual", statements.Perpetual)
	sg.GET("/export", statements.Export)

	reconcile := handlers.NewReconcileHandler(base, s.Reconcile)
	rg.GET("/reconciliation-report", reconcile.Report)
	rg.POST("/reconciliation/cleanup", middleware.RequireRole(appctx.RoleOperator), reconcile.Cleanup)
}

func registerCatalogRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, s Services) {
	h := handlers.NewCatalogHandler(base, s.Categories, s.CostCenters, s.CashFlow)
	rg.GET("/category-mappings", h.ListCategoryMappings)
	rg.POST("/category-mappings", h.AddCategoryMapping)
	rg.GET("/cost-centers", h.CostCenterTree)
	rg.POST("/cost-centers", h.CreateCostCenter)
	rg.GET("/cost-centers/:id/summary", h.CostCenterSummary)
	rg.GET("/cash-flow/summary", h.CashFlowSummary)
}
