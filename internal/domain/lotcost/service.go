package lotcost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
	"boigordo/internal/core/tx"
	"boigordo/internal/domain/category"
	"boigordo/internal/domain/ledger"
	"boigordo/internal/domain/lot"
	"boigordo/internal/domain/pen"
	"boigordo/internal/domain/period"
	"boigordo/pkg/logger"
)

var tracer = otel.Tracer("boigordo/lotcost")

// LockNamespace is the advisory lock namespace of lot recomputes.
const LockNamespace = "lotcost"

var errVersionMoved = errors.New("lot cost version moved")

var openEnd = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// LotReader loads lots.
type LotReader interface {
	Get(ctx context.Context, lotID id.ID) (*lot.Lot, error)
	List(ctx context.Context, f lot.Filter) ([]lot.Lot, error)
}

// AllocatedReader loads records allocated to lots and pens.
type AllocatedReader interface {
	ListAllocated(ctx context.Context, f ledger.AllocatedFilter) ([]ledger.Allocated, error)
}

// MappingSource provides the current category table.
type MappingSource interface {
	Table(ctx context.Context) (*category.Table, error)
}

// PlacementReader loads lot-pen placements.
type PlacementReader interface {
	Occupancy(ctx context.Context, from, to time.Time) (*pen.Occupancy, error)
}

// Observer receives recompute outcomes; metrics implement it.
type Observer interface {
	ObserveRecompute(outcome string, elapsed time.Duration)
}

// Service recomputes and verifies lot costs.
type Service struct {
	repo       Repository
	tx         tx.LockingManager
	lots       LotReader
	records    AllocatedReader
	mappings   MappingSource
	placements PlacementReader
	marker     period.Marker
	observer   Observer
	retired    []category.CostBucket
	now        func() time.Time
}

// Deps groups the collaborators of the lot cost service.
type Deps struct {
	Repo       Repository
	Tx         tx.LockingManager
	Lots       LotReader
	Records    AllocatedReader
	Mappings   MappingSource
	Placements PlacementReader
	Marker     period.Marker
	Observer   Observer
	Retired    []category.CostBucket
}

// NewService creates a lot cost service.
func NewService(d Deps) *Service {
	return &Service{
		repo:       d.Repo,
		tx:         d.Tx,
		lots:       d.Lots,
		records:    d.Records,
		mappings:   d.Mappings,
		placements: d.Placements,
		marker:     d.Marker,
		observer:   d.Observer,
		retired:    d.Retired,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Recompute implements lot.CostRecomputer and ledger.LotRecomputer.
func (s *Service) Recompute(ctx context.Context, lotID id.ID) error {
	_, err := s.RecomputeLotCost(ctx, lotID)
	return err
}

// RecomputeLotCost rebuilds the lot's breakdown under a per-lot advisory lock,
// stores it as a new snapshot and swaps the lot's cost fields with an optimistic
// version check. A moved version is retried once.
func (s *Service) RecomputeLotCost(ctx context.Context, lotID id.ID) (*Breakdown, error) {
	ctx, span := tracer.Start(ctx, "lotcost.Recompute")
	span.SetAttributes(attribute.String("lot.id", lotID.String()))
	defer span.End()

	start := time.Now()
	var (
		b   *Breakdown
		err error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		b, err = s.recomputeOnce(ctx, lotID)
		if !errors.Is(err, errVersionMoved) {
			break
		}
		logger.Warn(ctx, "lot cost version moved, retrying", "lot_id", lotID, "attempt", attempt)
	}
	if errors.Is(err, errVersionMoved) {
		err = apperror.NewRecomputeConflict("lot", lotID)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if apperror.IsRecomputeConflict(err) {
			outcome = "conflict"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if s.observer != nil {
		s.observer.ObserveRecompute(outcome, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) recomputeOnce(ctx context.Context, lotID id.ID) (*Breakdown, error) {
	var out *Breakdown
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.tx.LockKey(ctx, LockNamespace, lotID.String()); err != nil {
			return fmt.Errorf("lock lot cost: %w", err)
		}

		l, err := s.lots.Get(ctx, lotID)
		if err != nil {
			return err
		}
		b, err := s.derive(ctx, l)
		if err != nil {
			return err
		}

		if err := s.repo.InsertSnapshot(ctx, b); err != nil {
			return fmt.Errorf("insert cost snapshot: %w", err)
		}
		swapped, err := s.repo.SwapLotCost(ctx, lotID, l.CostVersion, b)
		if err != nil {
			return fmt.Errorf("swap lot cost: %w", err)
		}
		if !swapped {
			return errVersionMoved
		}

		if !b.Total.Equal(l.TotalCost) && s.marker != nil {
			months, err := s.repo.ActivityMonths(ctx, lotID)
			if err != nil {
				return fmt.Errorf("lot activity months: %w", err)
			}
			if err := s.marker.MarkDirty(ctx, "lot_cost_changed", months...); err != nil {
				return err
			}
		}

		logger.Info(ctx, "lot cost recomputed",
			"lot_id", lotID,
			"total", b.Total,
			"previous_total", l.TotalCost,
			"cost_per_head", b.CostPerHead,
			"status", b.Status,
		)
		out = b
		return nil
	})
	return out, err
}

func (s *Service) derive(ctx context.Context, l *lot.Lot) (*Breakdown, error) {
	occ, err := s.placements.Occupancy(ctx, time.Time{}, openEnd)
	if err != nil {
		return nil, fmt.Errorf("load placements: %w", err)
	}
	items, err := s.records.ListAllocated(ctx, ledger.AllocatedFilter{
		LotIDs: []id.ID{l.ID},
		PenIDs: occ.PensOf(l.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("load allocated records: %w", err)
	}
	table, err := s.mappings.Table(ctx)
	if err != nil {
		return nil, fmt.Errorf("load category mappings: %w", err)
	}
	return Compute(l, items, table, occ, Options{Retired: s.retired, At: s.now()}), nil
}

// Breakdown returns the lot's current snapshot, computing one when the lot has none.
func (s *Service) Breakdown(ctx context.Context, lotID id.ID) (*Breakdown, error) {
	l, err := s.lots.Get(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if l.CostSnapshotID == nil {
		return s.RecomputeLotCost(ctx, lotID)
	}
	return s.repo.Snapshot(ctx, *l.CostSnapshotID)
}

// VerifyLotCost re-derives the breakdown without writing and compares it with
// the stored total.
func (s *Service) VerifyLotCost(ctx context.Context, lotID id.ID) (*Drift, error) {
	l, err := s.lots.Get(ctx, lotID)
	if err != nil {
		return nil, err
	}
	b, err := s.derive(ctx, l)
	if err != nil {
		return nil, err
	}
	diff := b.Total.Sub(l.TotalCost)
	return &Drift{
		LotID:      lotID,
		Stored:     l.TotalCost,
		Derived:    b.Total,
		Difference: diff,
		InSync:     diff.IsZero(),
		CheckedAt:  s.now(),
	}, nil
}

// RecomputeOpen recomputes every lot that is not closed. Failures are logged and
// counted; the pass continues.
func (s *Service) RecomputeOpen(ctx context.Context) (recomputed, failed int, err error) {
	lots, err := s.lots.List(ctx, lot.Filter{OnlyOpen: true, Limit: 1000})
	if err != nil {
		return 0, 0, fmt.Errorf("list open lots: %w", err)
	}
	for _, l := range lots {
		if ctx.Err() != nil {
			return recomputed, failed, ctx.Err()
		}
		if _, err := s.RecomputeLotCost(ctx, l.ID); err != nil {
			failed++
			logger.Error(ctx, "lot recompute failed", "lot_id", l.ID, "error", err)
			continue
		}
		recomputed++
	}
	return recomputed, failed, nil
}

