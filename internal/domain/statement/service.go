package statement

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
	"boigordo/internal/core/tx"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/category"
	"boigordo/internal/domain/ledger"
	"boigordo/internal/domain/lot"
	"boigordo/internal/domain/mortality"
	"boigordo/internal/domain/pen"
	"boigordo/internal/domain/sale"
	"boigordo/internal/domain/scope"
	"boigordo/pkg/logger"
)

var tracer = otel.Tracer("boigordo/statement")

// LockNamespace is the advisory lock namespace of statement generation.
const LockNamespace = "statement"

// MaxPerpetualMonths bounds a perpetual report.
const MaxPerpetualMonths = 120

// Repository persists statements. Upsert replaces the row of the statement's
// (month, scope) and returns it as stored.
type Repository interface {
	Upsert(ctx context.Context, st *Statement) (*Statement, error)
	Find(ctx context.Context, month types.Month, sc scope.Scope) (*Statement, error)
	List(ctx context.Context, from, to types.Month, sc scope.Scope) ([]Statement, error)
}

// Cache holds generated statements keyed by (month, scope).
type Cache interface {
	Get(ctx context.Context, month types.Month, sc scope.Scope) (*Statement, bool, error)
	Set(ctx context.Context, st *Statement) error
}

type (
	RecordReader interface {
		ListAllocated(ctx context.Context, f ledger.AllocatedFilter) ([]ledger.Allocated, error)
	}
	SaleReader interface {
		List(ctx context.Context, f sale.Filter) ([]sale.Sale, error)
	}
	LotReader interface {
		Get(ctx context.Context, lotID id.ID) (*lot.Lot, error)
	}
	PenChecker interface {
		Exists(ctx context.Context, penID id.ID) (bool, error)
	}
	MortalityReader interface {
		ComputeDeduction(ctx context.Context, sc scope.Scope, p types.Period) (*mortality.Deduction, error)
	}
	PlacementReader interface {
		Occupancy(ctx context.Context, from, to time.Time) (*pen.Occupancy, error)
	}
	MappingSource interface {
		Table(ctx context.Context) (*category.Table, error)
	}
	// Staleness versions the inputs of a month.
	Staleness interface {
		Pin(ctx context.Context, month types.Month) (int64, error)
		IsStale(ctx context.Context, month types.Month, revision int64) (bool, error)
	}
	// Observer receives generation outcomes; metrics implement it.
	Observer interface {
		ObserveStatement(status string, elapsed time.Duration)
	}
)

// Deps groups the collaborators of the statement service.
type Deps struct {
	Repo       Repository
	Tx         tx.LockingManager
	Records    RecordReader
	Sales      SaleReader
	Lots       LotReader
	Pens       PenChecker
	Mortality  MortalityReader
	Placements PlacementReader
	Mappings   MappingSource
	Staleness  Staleness
	Cache      Cache
	Observer   Observer
}

// Service generates, serves and rolls up statements.
type Service struct {
	d   Deps
	now func() time.Time
}

// NewService creates a statement service. Cache and Observer may be nil.
func NewService(d Deps) *Service {
	return &Service{d: d, now: func() time.Time { return time.Now().UTC() }}
}

// Generate derives the statement of month for sc and stores it, replacing any
// previous generation of the same key.
func (s *Service) Generate(ctx context.Context, month types.Month, sc scope.Scope) (*Statement, error) {
	ctx, span := tracer.Start(ctx, "statement.Generate")
	span.SetAttributes(
		attribute.String("statement.month", month.String()),
		attribute.String("statement.scope", sc.String()),
	)
	defer span.End()

	if err := s.checkScope(ctx, sc); err != nil {
		return nil, err
	}

	generatedAt := s.now()
	start := time.Now()

	var stored *Statement
	err := s.d.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.d.Tx.LockKey(ctx, LockNamespace, month.String()+"|"+sc.String()); err != nil {
			return fmt.Errorf("lock statement: %w", err)
		}
		// Pinned before reading inputs: a writer still holding the month waits
		// for this transaction or is already visible to it.
		rev, err := s.d.Staleness.Pin(ctx, month)
		if err != nil {
			return err
		}
		in, err := s.inputs(ctx, month, sc)
		if err != nil {
			return err
		}
		in.At = generatedAt
		st := Compute(*in)
		st.InputRevision = rev
		stored, err = s.d.Repo.Upsert(ctx, st)
		if err != nil {
			return fmt.Errorf("upsert statement: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if s.d.Observer != nil {
			s.d.Observer.ObserveStatement("error", time.Since(start))
		}
		return nil, err
	}
	if s.d.Observer != nil {
		s.d.Observer.ObserveStatement(string(stored.Status), time.Since(start))
	}

	if s.d.Cache != nil {
		if err := s.d.Cache.Set(ctx, stored); err != nil {
			logger.Warn(ctx, "statement cache set failed", "month", month.String(), "scope", sc.String(), "error", err)
		}
	}

	logger.Info(ctx, "statement generated",
		"month", month.String(),
		"scope", sc.String(),
		"net_profit", stored.NetProfit,
		"status", stored.Status,
		"version", stored.Version,
		"revision", stored.InputRevision,
	)
	return stored, nil
}

// Get returns the stored statement of month for sc, generating it when absent
// and regenerating it when its inputs changed after generation.
func (s *Service) Get(ctx context.Context, month types.Month, sc scope.Scope) (*Statement, error) {
	st, err := s.load(ctx, month, sc)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return s.Generate(ctx, month, sc)
	}
	err = s.ensureFresh(ctx, st)
	if apperror.IsStaleStatement(err) {
		logger.Debug(ctx, "statement stale, regenerating", "month", month.String(), "scope", sc.String())
		return s.Generate(ctx, month, sc)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) load(ctx context.Context, month types.Month, sc scope.Scope) (*Statement, error) {
	if s.d.Cache != nil {
		st, ok, err := s.d.Cache.Get(ctx, month, sc)
		if err != nil {
			logger.Warn(ctx, "statement cache get failed", "month", month.String(), "scope", sc.String(), "error", err)
		} else if ok {
			return st, nil
		}
	}
	st, err := s.d.Repo.Find(ctx, month, sc)
	if err != nil {
		return nil, fmt.Errorf("find statement: %w", err)
	}
	return st, nil
}

// ensureFresh returns a STALE_STATEMENT error when month changed after the
// revision st was built from.
func (s *Service) ensureFresh(ctx context.Context, st *Statement) error {
	stale, err := s.d.Staleness.IsStale(ctx, st.Month(), st.InputRevision)
	if err != nil {
		return err
	}
	if stale {
		return apperror.NewStaleStatement(st.Month().String(), st.Scope().String())
	}
	return nil
}

func (s *Service) checkScope(ctx context.Context, sc scope.Scope) error {
	switch sc.Type {
	case scope.TypeGlobal:
		return nil
	case scope.TypeLot:
		if sc.ID == nil {
			return apperror.NewValidation("lot scope requires an id")
		}
		_, err := s.d.Lots.Get(ctx, *sc.ID)
		return err
	case scope.TypePen:
		if sc.ID == nil {
			return apperror.NewValidation("pen scope requires an id")
		}
		ok, err := s.d.Pens.Exists(ctx, *sc.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.NewNotFound("pen", sc.ID.String())
		}
		return nil
	}
	return apperror.NewValidation(fmt.Sprintf("unknown scope type %q", sc.Type))
}

func (s *Service) inputs(ctx context.Context, month types.Month, sc scope.Scope) (*Inputs, error) {
	occ, err := s.d.Placements.Occupancy(ctx, time.Time{}, month.End())
	if err != nil {
		return nil, fmt.Errorf("load placements: %w", err)
	}

	af := ledger.AllocatedFilter{RecognizedFrom: month.Time, RecognizedTo: month.End()}
	sf := sale.Filter{From: month.Time, To: month.End()}
	salesScoped := true
	switch sc.Type {
	case scope.TypeGlobal:
		af.All = true
	case scope.TypeLot:
		af.LotIDs = []id.ID{*sc.ID}
		af.PenIDs = occ.PensOf(*sc.ID)
		sf.LotIDs = []id.ID{*sc.ID}
	case scope.TypePen:
		af.PenIDs = []id.ID{*sc.ID}
		af.LotIDs = occ.LotsIn(*sc.ID)
		sf.LotIDs = af.LotIDs
		salesScoped = len(sf.LotIDs) > 0
	}

	items, err := s.d.Records.ListAllocated(ctx, af)
	if err != nil {
		return nil, fmt.Errorf("load allocated records: %w", err)
	}

	var sales []sale.Sale
	if salesScoped {
		sales, err = s.d.Sales.List(ctx, sf)
		if err != nil {
			return nil, fmt.Errorf("list sales: %w", err)
		}
	}
	lots := make(map[id.ID]*lot.Lot)
	for _, sl := range sales {
		if _, ok := lots[sl.LotID]; ok {
			continue
		}
		l, err := s.d.Lots.Get(ctx, sl.LotID)
		if apperror.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		lots[sl.LotID] = l
	}

	ded, err := s.d.Mortality.ComputeDeduction(ctx, sc, types.MonthPeriod(month))
	if err != nil {
		return nil, fmt.Errorf("mortality deduction: %w", err)
	}

	table, err := s.d.Mappings.Table(ctx)
	if err != nil {
		return nil, fmt.Errorf("load category mappings: %w", err)
	}

	return &Inputs{
		Month:     month,
		Scope:     sc,
		Allocated: items,
		Sales:     sales,
		Lots:      lots,
		Mortality: ded.Total,
		Occupancy: occ,
		Mappings:  table,
	}, nil
}

// Perpetual rolls the stored statements of from..to up for sc. Stale months are
// regenerated first; months never generated contribute zero.
func (s *Service) Perpetual(ctx context.Context, from, to types.Month, sc scope.Scope) (*PerpetualReport, error) {
	months := types.MonthsBetween(from, to)
	if len(months) == 0 {
		return nil, apperror.NewValidation("from must not be after to")
	}
	if len(months) > MaxPerpetualMonths {
		return nil, apperror.NewValidation(fmt.Sprintf("range exceeds %d months", MaxPerpetualMonths))
	}
	if err := s.checkScope(ctx, sc); err != nil {
		return nil, err
	}

	stored, err := s.d.Repo.List(ctx, from, to, sc)
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	byMonth := make(map[string]*Statement, len(stored))
	for i := range stored {
		st := &stored[i]
		err := s.ensureFresh(ctx, st)
		if apperror.IsStaleStatement(err) {
			st, err = s.Generate(ctx, st.Month(), sc)
		}
		if err != nil {
			return nil, err
		}
		byMonth[st.Month().String()] = st
	}

	lines := make([]*Statement, len(months))
	for i, m := range months {
		lines[i] = byMonth[m.String()]
	}
	return Rollup(sc, months, lines), nil
}

// Rollup builds a perpetual report from one optional statement per month.
func Rollup(sc scope.Scope, months []types.Month, statements []*Statement) *PerpetualReport {
	rep := &PerpetualReport{
		Scope:  sc.String(),
		Months: make([]MonthLine, 0, len(months)),
		Totals: Totals{
			GrossRevenue:  types.Zero(),
			Deductions:    types.Zero(),
			TotalCosts:    types.Zero(),
			TotalExpenses: types.Zero(),
			NetProfit:     types.Zero(),
		},
	}
	if len(months) > 0 {
		rep.From = months[0].String()
		rep.To = months[len(months)-1].String()
	}

	best, worst := -1, -1
	for i, m := range months {
		line := MonthLine{
			Month:         m.String(),
			GrossRevenue:  types.Zero(),
			Deductions:    types.Zero(),
			TotalCosts:    types.Zero(),
			TotalExpenses: types.Zero(),
			NetProfit:     types.Zero(),
			Status:        StatusComplete,
		}
		if i < len(statements) && statements[i] != nil {
			st := statements[i]
			generated := st.GeneratedAt
			line.GrossRevenue = st.GrossRevenue
			line.Deductions = st.Deductions
			line.TotalCosts = st.TotalCosts
			line.TotalExpenses = st.TotalExpenses
			line.NetProfit = st.NetProfit
			line.Status = st.Status
			line.GeneratedAt = &generated
			line.HasStatement = true
			line.IncompleteNotes = st.Reasons
			if st.Status == StatusIncomplete {
				rep.Incomplete = true
			}
		}

		rep.Totals.GrossRevenue = rep.Totals.GrossRevenue.Add(line.GrossRevenue)
		rep.Totals.Deductions = rep.Totals.Deductions.Add(line.Deductions)
		rep.Totals.TotalCosts = rep.Totals.TotalCosts.Add(line.TotalCosts)
		rep.Totals.TotalExpenses = rep.Totals.TotalExpenses.Add(line.TotalExpenses)
		rep.Totals.NetProfit = rep.Totals.NetProfit.Add(line.NetProfit)
		line.CumulativeNet = rep.Totals.NetProfit
		rep.Months = append(rep.Months, line)

		if !line.HasStatement {
			continue
		}
		if best < 0 || line.NetProfit.GreaterThan(rep.Months[best].NetProfit) {
			best = len(rep.Months) - 1
		}
		if worst < 0 || line.NetProfit.LessThan(rep.Months[worst].NetProfit) {
			worst = len(rep.Months) - 1
		}
	}
	if best >= 0 {
		b, w := rep.Months[best], rep.Months[worst]
		rep.Best, rep.Worst = &b, &w
	}
	return rep
}
