package ledger

import (
	"context"
	"fmt"
	"time"

	appctx "boigordo/internal/core/context"
	"boigordo/internal/core/apperror"
	"boigordo/internal/core/entity"
	"boigordo/internal/core/id"
	"boigordo/internal/core/tx"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/allocation"
	"boigordo/internal/domain/category"
	"boigordo/internal/domain/lot"
	"boigordo/internal/domain/pen"
	"boigordo/internal/domain/period"
	"boigordo/pkg/logger"
)

// Numberer issues human-readable record numbers.
type Numberer interface {
	Next(ctx context.Context, prefix string, at time.Time) (string, error)
}

// MappingSource provides the current category table.
type MappingSource interface {
	Table(ctx context.Context) (*category.Table, error)
}

// SaleDates resolves the disposal date of a sale.
type SaleDates interface {
	SaleDate(ctx context.Context, saleID id.ID) (time.Time, error)
}

// PlacementReader loads lot-pen placements.
type PlacementReader interface {
	Occupancy(ctx context.Context, from, to time.Time) (*pen.Occupancy, error)
}

// CashFlowRecorder writes the realized movement of a settled record.
type CashFlowRecorder interface {
	RecordSettlement(ctx context.Context, r *Record) error
}

// LotRecomputer re-derives lot costs.
type LotRecomputer interface {
	Recompute(ctx context.Context, lotID id.ID) error
}

// Service provides ledger operations.
type Service struct {
	repo       Repository
	tx         tx.Manager
	validator  *allocation.Validator
	mappings   MappingSource
	numbers    Numberer
	marker     period.Marker
	sales      SaleDates
	placements PlacementReader
	cashflow   CashFlowRecorder
	recomputer LotRecomputer
	now        func() time.Time
}

// Deps groups the collaborators of the ledger service.
type Deps struct {
	Repo       Repository
	Tx         tx.Manager
	Validator  *allocation.Validator
	Mappings   MappingSource
	Numbers    Numberer
	Marker     period.Marker
	Sales      SaleDates
	Placements PlacementReader
	CashFlow   CashFlowRecorder
}

// NewService creates a ledger service.
func NewService(d Deps) *Service {
	return &Service{
		repo:       d.Repo,
		tx:         d.Tx,
		validator:  d.Validator,
		mappings:   d.Mappings,
		numbers:    d.Numbers,
		marker:     d.Marker,
		sales:      d.Sales,
		placements: d.Placements,
		cashflow:   d.CashFlow,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetRecomputer wires the lot cost recompute used by Reconcile.
func (s *Service) SetRecomputer(r LotRecomputer) {
	s.recomputer = r
}

// CreateInput describes a new record and its optional explicit allocations.
type CreateInput struct {
	Kind           Kind
	Category       category.Code
	Description    string
	Amount         types.Money
	CompetenceDate time.Time
	DueDate        time.Time
	Settled        bool
	SettledAt      *time.Time

	LotID          *id.ID
	PenID          *id.ID
	SaleID         *id.ID
	CostCenterID   *id.ID
	PartnerID      *id.ID
	PayerAccountID *id.ID

	Allocations []allocation.Candidate
}

// Create validates the record and its allocations and writes both in one
// transaction, so a record never exists with zero or partial allocations.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Record, error) {
	rec := &Record{
		BaseEntity:     entity.NewBaseEntity(),
		Kind:           in.Kind,
		Category:       in.Category.Normalize(),
		Description:    in.Description,
		Amount:         in.Amount,
		CompetenceDate: in.CompetenceDate.UTC(),
		DueDate:        in.DueDate.UTC(),
		LotID:          in.LotID,
		PenID:          in.PenID,
		SaleID:         in.SaleID,
		CostCenterID:   in.CostCenterID,
		PartnerID:      in.PartnerID,
		PayerAccountID: in.PayerAccountID,
		CreatedBy:      appctx.GetUserID(ctx),
	}
	if rec.DueDate.IsZero() {
		rec.DueDate = rec.CompetenceDate
	}
	if err := rec.Validate(ctx); err != nil {
		return nil, err
	}

	table, err := s.mappings.Table(ctx)
	if err != nil {
		return nil, fmt.Errorf("load category mappings: %w", err)
	}
	mapping, ok := table.Resolve(rec.Category, rec.CompetenceDate, rec.Subject())
	if !ok {
		return nil, apperror.NewValidation("category has no mapping at competence date").
			WithDetail("category", rec.Category).
			WithDetail("competence_date", rec.CompetenceDate.Format(time.DateOnly))
	}

	allocs, err := s.validator.Validate(ctx, allocation.Subject{
		RecordID:    rec.ID,
		Amount:      rec.Amount,
		Category:    string(rec.Category),
		LotID:       rec.LotID,
		PenID:       rec.PenID,
		RequiresLot: mapping.RequiresLot,
	}, in.Allocations)
	if err != nil {
		return nil, err
	}
	rec.Allocations = allocs

	months := []types.Month{types.MonthOf(rec.CompetenceDate)}
	if rec.SaleID != nil && s.sales != nil {
		saleDate, err := s.sales.SaleDate(ctx, *rec.SaleID)
		if err != nil {
			return nil, err
		}
		months = append(months, types.MonthOf(saleDate))
	}

	// Numbers are drawn before the transaction; a rollback leaves a gap.
	rec.Number, err = s.numbers.Next(ctx, rec.Kind.NumberPrefix(), rec.CompetenceDate)
	if err != nil {
		return nil, fmt.Errorf("next record number: %w", err)
	}

	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, rec); err != nil {
			return fmt.Errorf("create record: %w", err)
		}
		if err := s.repo.CreateAllocations(ctx, allocs); err != nil {
			return fmt.Errorf("create allocations: %w", err)
		}
		if err := s.marker.MarkDirty(ctx, "record_created", months...); err != nil {
			return err
		}
		if in.Settled {
			at := rec.DueDate
			if in.SettledAt != nil {
				at = in.SettledAt.UTC()
			}
			return s.settle(ctx, rec, at, rec.PayerAccountID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "monetary record created",
		"record_id", rec.ID,
		"number", rec.Number,
		"kind", rec.Kind,
		"category", rec.Category,
		"amount", rec.Amount,
		"allocations", len(allocs),
	)
	return rec, nil
}

// Get returns a record with its allocations.
func (s *Service) Get(ctx context.Context, recordID id.ID) (*Record, error) {
	rec, err := s.repo.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	allocs, err := s.repo.AllocationsOf(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("load allocations: %w", err)
	}
	rec.Allocations = allocs[recordID]
	return rec, nil
}

// List returns records matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Record, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Limit > 1000 {
		f.Limit = 1000
	}
	return s.repo.List(ctx, f)
}

// ListUnpaged returns every record matching f. Used by batch passes and roll-ups.
func (s *Service) ListUnpaged(ctx context.Context, f Filter) ([]Record, error) {
	f.Limit, f.Offset = 0, 0
	return s.repo.List(ctx, f)
}

// ListAllocated returns allocations with their records for aggregation.
func (s *Service) ListAllocated(ctx context.Context, f AllocatedFilter) ([]Allocated, error) {
	return s.repo.ListAllocated(ctx, f)
}

// Settle marks a record paid/received and writes its cash-flow entry once.
func (s *Service) Settle(ctx context.Context, recordID id.ID, at time.Time, accountID *id.ID) (*Record, error) {
	var rec *Record
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.repo.GetForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.DeletionMark {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule, "record is deleted")
		}
		if rec.Settled {
			return nil
		}
		if accountID == nil {
			accountID = rec.PayerAccountID
		}
		return s.settle(ctx, rec, at.UTC(), accountID)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) settle(ctx context.Context, rec *Record, at time.Time, accountID *id.ID) error {
	if err := s.repo.MarkSettled(ctx, rec.ID, at, accountID); err != nil {
		return fmt.Errorf("mark settled: %w", err)
	}
	rec.Settled = true
	rec.SettledAt = &at
	rec.PayerAccountID = accountID
	if s.cashflow != nil {
		if err := s.cashflow.RecordSettlement(ctx, rec); err != nil {
			return fmt.Errorf("record cash flow: %w", err)
		}
	}
	logger.Info(ctx, "monetary record settled", "record_id", rec.ID, "settled_at", at)
	return nil
}

// ReconcileResult lists the lots recomputed for a record.
type ReconcileResult struct {
	RecordID id.ID   `json:"recordId"`
	Lots     []id.ID `json:"lots"`
}

// Reconcile recomputes every lot the record reaches: its direct lot link,
// LOT allocations and lots placed in its PEN allocations at competence date.
func (s *Service) Reconcile(ctx context.Context, recordID id.ID) (*ReconcileResult, error) {
	rec, err := s.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}

	lots, err := s.affectedLots(ctx, rec)
	if err != nil {
		return nil, err
	}

	res := &ReconcileResult{RecordID: recordID, Lots: lots}
	if s.recomputer == nil {
		return res, nil
	}
	for _, lotID := range lots {
		if err := s.recomputer.Recompute(ctx, lotID); err != nil {
			return nil, fmt.Errorf("recompute lot %s: %w", lotID, err)
		}
	}
	logger.Info(ctx, "record reconciled", "record_id", recordID, "lots", len(lots))
	return res, nil
}

func (s *Service) affectedLots(ctx context.Context, rec *Record) ([]id.ID, error) {
	seen := make(map[id.ID]struct{})
	var out []id.ID
	add := func(lotID id.ID) {
		if _, ok := seen[lotID]; !ok {
			seen[lotID] = struct{}{}
			out = append(out, lotID)
		}
	}

	if rec.LotID != nil {
		add(*rec.LotID)
	}
	var pens []id.ID
	for _, a := range rec.Allocations {
		switch a.TargetType {
		case allocation.TargetLot:
			add(*a.TargetID)
		case allocation.TargetPen:
			pens = append(pens, *a.TargetID)
		}
	}
	if len(pens) == 0 || s.placements == nil {
		return out, nil
	}

	at := rec.CompetenceDate
	occ, err := s.placements.Occupancy(ctx, at, at.Add(time.Nanosecond))
	if err != nil {
		return nil, err
	}
	for _, penID := range pens {
		for _, link := range occ.ActiveIn(penID, at) {
			add(link.LotID)
		}
	}
	return out, nil
}

// RecordAcquisition writes the acquisition, freight and commission records of a
// newly confirmed lot. Zero amounts are skipped.
func (s *Service) RecordAcquisition(ctx context.Context, l *lot.Lot) error {
	lotID := l.ID
	parts := []struct {
		code   category.Code
		desc   string
		amount types.Money
	}{
		{category.AnimalPurchase, "Compra de gado - Lote " + l.Code, l.PurchaseValue},
		{category.Freight, "Frete - Lote " + l.Code, l.FreightCost},
		{category.Commission, "Comissão - Lote " + l.Code, l.Commission},
	}
	for _, p := range parts {
		if !p.amount.IsPositive() {
			continue
		}
		_, err := s.Create(ctx, CreateInput{
			Kind:           KindExpense,
			Category:       p.code,
			Description:    p.desc,
			Amount:         p.amount,
			CompetenceDate: l.PurchaseDate,
			DueDate:        l.PurchaseDate,
			LotID:          &lotID,
			PartnerID:      l.VendorID,
			PayerAccountID: l.PayerAccountID,
		})
		if err != nil {
			return fmt.Errorf("%s record: %w", p.code, err)
		}
	}
	return nil
}

// SoftDelete marks records deleted and flags their months dirty.
// Callers are responsible for auditing; see reconcile.Service.Cleanup.
func (s *Service) SoftDelete(ctx context.Context, records []Record, by string) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]id.ID, 0, len(records))
	months := make([]types.Month, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
		months = append(months, types.MonthOf(r.CompetenceDate))
		if r.SaleID != nil && s.sales != nil {
			if d, err := s.sales.SaleDate(ctx, *r.SaleID); err == nil {
				months = append(months, types.MonthOf(d))
			}
		}
	}
	return s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.SoftDelete(ctx, ids, by, s.now()); err != nil {
			return fmt.Errorf("soft delete records: %w", err)
		}
		return s.marker.MarkDirty(ctx, "record_deleted", months...)
	})
}
