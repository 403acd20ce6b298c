// Package app assembles the storage, domain services and caches shared by the
// server and worker binaries.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"boigordo/internal/config"
	"boigordo/internal/domain/allocation"
	"boigordo/internal/domain/cashflow"
	"boigordo/internal/domain/category"
	"boigordo/internal/domain/costcenter"
	"boigordo/internal/domain/ledger"
	"boigordo/internal/domain/lot"
	"boigordo/internal/domain/lotcost"
	"boigordo/internal/domain/mortality"
	"boigordo/internal/domain/pen"
	"boigordo/internal/domain/period"
	"boigordo/internal/domain/reconcile"
	"boigordo/internal/domain/sale"
	"boigordo/internal/domain/statement"
	"boigordo/internal/infrastructure/cache"
	"boigordo/internal/infrastructure/metrics"
	"boigordo/internal/infrastructure/storage/migrations"
	"boigordo/internal/infrastructure/storage/postgres"
	"boigordo/internal/infrastructure/storage/postgres/catalog_repo"
	"boigordo/internal/infrastructure/storage/postgres/document_repo"
	"boigordo/internal/infrastructure/storage/postgres/register_repo"
	"boigordo/internal/infrastructure/storage/postgres/report_repo"
	"boigordo/pkg/logger"
	"boigordo/pkg/numerator"
)

// App holds every long-lived component of a process.
type App struct {
	Config  *config.Config
	Pool    *postgres.Pool
	Tx      *postgres.TxManager
	Redis   *redis.Client
	Metrics *metrics.Metrics

	Audit       *postgres.AuditService
	Idempotency *postgres.IdempotencyStore
	Outbox      *postgres.OutboxPublisher
	Statements  *cache.StatementCache

	Periods     *period.Service
	Categories  *category.Service
	CostCenters *costcenter.Service
	CashFlow    *cashflow.Service
	Ledger      *ledger.Service
	Lots        *lot.Service
	LotCosts    *lotcost.Service
	Pens        *pen.Service
	Sales       *sale.Service
	Mortality   *mortality.Service
	Statement   *statement.Service
	Reconcile   *reconcile.Service
}

// New connects to PostgreSQL and Redis and builds the services. The caller
// owns the result and must Close it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	a := &App{
		Config:  cfg,
		Pool:    pool,
		Tx:      postgres.NewTxManager(pool),
		Redis:   rdb,
		Metrics: metrics.New(),
	}
	a.Metrics.TrackPool(func() (int32, int32, int32) {
		st := postgres.GetPoolStats(pool.Unwrap())
		return st.TotalConns, st.AcquiredConns, st.IdleConns
	})
	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	txm := a.Tx

	audit, err := postgres.NewAuditService(txm)
	if err != nil {
		return fmt.Errorf("create audit service: %w", err)
	}
	a.Audit = audit
	a.Idempotency = postgres.NewIdempotencyStore(txm, a.Config.IdempotencyTTL)
	a.Outbox = postgres.NewOutboxPublisher(txm)
	a.Statements = cache.NewStatementCache(a.Redis, a.Config.StatementCacheTTL)

	lotRepo := catalog_repo.NewLotRepo(txm)
	penRepo := catalog_repo.NewPenRepo(txm)
	saleRepo := document_repo.NewSaleRepo(txm)

	a.Periods = period.NewService(register_repo.NewPeriodRepo(txm), a.Outbox)
	a.Categories = category.NewService(catalog_repo.NewCategoryRepo(txm), txm, a.Periods)
	a.CashFlow = cashflow.NewService(register_repo.NewCashFlowRepo(txm), a.Categories)
	a.Pens = pen.NewService(penRepo, lotRepo, txm, a.Periods)

	numbers := numerator.New(
		func(ctx context.Context) numerator.Querier { return txm.GetQuerier(ctx) },
		numerator.Config{Strategy: numerator.StrategyStrict, PadWidth: 6},
	)
	a.Ledger = ledger.NewService(ledger.Deps{
		Repo:       document_repo.NewLedgerRepo(txm),
		Tx:         txm,
		Validator:  allocation.NewValidator(allocation.Targets{Lots: lotRepo.Exists, Pens: penRepo.Exists}),
		Mappings:   a.Categories,
		Numbers:    numbers,
		Marker:     a.Periods,
		Sales:      saleRepo,
		Placements: a.Pens,
		CashFlow:   a.CashFlow,
	})
	a.CostCenters = costcenter.NewService(catalog_repo.NewCostCenterRepo(txm), a.Ledger)

	a.Lots = lot.NewService(lotRepo, txm, a.Ledger, a.Config.DefaultCarcassYield)
	a.LotCosts = lotcost.NewService(lotcost.Deps{
		Repo:       register_repo.NewLotCostRepo(txm),
		Tx:         txm,
		Lots:       lotRepo,
		Records:    a.Ledger,
		Mappings:   a.Categories,
		Placements: a.Pens,
		Marker:     a.Periods,
		Observer:   a.Metrics,
		Retired:    a.Config.RetiredBuckets,
	})
	a.Lots.SetRecomputer(a.LotCosts)
	a.Ledger.SetRecomputer(a.LotCosts)
	a.Pens.SetRecomputer(a.LotCosts)

	a.Sales = sale.NewService(saleRepo, txm, a.Lots, a.Ledger, a.Periods, a.Pens)
	a.Mortality = mortality.NewService(document_repo.NewMortalityRepo(txm), txm, a.Lots, a.Pens, a.Periods)
	a.Mortality.SetRecomputer(a.LotCosts)

	a.Statement = statement.NewService(statement.Deps{
		Repo:       report_repo.NewStatementRepo(txm),
		Tx:         txm,
		Records:    a.Ledger,
		Sales:      saleRepo,
		Lots:       lotRepo,
		Pens:       penRepo,
		Mortality:  a.Mortality,
		Placements: a.Pens,
		Mappings:   a.Categories,
		Staleness:  a.Periods,
		Cache:      a.Statements,
		Observer:   a.Metrics,
	})
	a.Reconcile = reconcile.NewService(a.Ledger, a.Categories, a.Audit, txm)
	return nil
}

// Migrate applies pending schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	m, err := migrations.New(a.Pool.Unwrap())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			logger.Warn(ctx, "close migrator", "error", cerr)
		}
	}()
	return m.Up(ctx)
}

// Ping checks the database.
func (a *App) Ping(ctx context.Context) error { return a.Pool.Ping(ctx) }

// PingRedis checks the statement cache backend.
func (a *App) PingRedis(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }

// Close releases connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
