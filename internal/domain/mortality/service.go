package mortality

import (
	"context"
	"fmt"
	"time"

	appctx "boigordo/internal/core/context"
	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
	"boigordo/internal/core/tx"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/lot"
	"boigordo/internal/domain/pen"
	"boigordo/internal/domain/period"
	"boigordo/internal/domain/scope"
	"boigordo/pkg/logger"
)

// Repository persists mortality records.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, recordID id.ID) (*Record, error)
	List(ctx context.Context, f Filter) ([]Record, error)
	IsCompensated(ctx context.Context, recordID id.ID) (bool, error)
}

// LotStock reads lots and changes their head count inside the caller's transaction.
type LotStock interface {
	Get(ctx context.Context, lotID id.ID) (*lot.Lot, error)
	AdjustQuantity(ctx context.Context, lotID id.ID, delta int, clamp bool) (*lot.Lot, int, error)
}

// Placements reads lot-pen placements and moves heads out of and back into pens.
type Placements interface {
	Occupancy(ctx context.Context, from, to time.Time) (*pen.Occupancy, error)
	Withdraw(ctx context.Context, lotID id.ID, moves []pen.Move, at time.Time) error
	Restore(ctx context.Context, lotID id.ID, moves []pen.Move, at time.Time) error
	Refresh(ctx context.Context, penIDs []id.ID, at time.Time)
}

// Service records deaths and computes deductions.
type Service struct {
	repo       Repository
	tx         tx.Manager
	lots       LotStock
	placements Placements
	marker     period.Marker
	recomputer lot.CostRecomputer
	now        func() time.Time
}

// NewService creates a mortality service.
func NewService(repo Repository, txm tx.Manager, lots LotStock, placements Placements, marker period.Marker) *Service {
	return &Service{
		repo:       repo,
		tx:         txm,
		lots:       lots,
		placements: placements,
		marker:     marker,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetRecomputer wires the lot cost recompute used for lots that were never costed.
func (s *Service) SetRecomputer(r lot.CostRecomputer) {
	s.recomputer = r
}

// RecordInput describes a death event.
type RecordInput struct {
	LotID         id.ID
	PenID         *id.ID
	DeathDate     time.Time
	Quantity      int
	Cause         string
	EstimatedLoss *types.Money
}

// RecordMortality stores the event and decrements the lot's current quantity in
// the same transaction. The decrement stops at zero; the record keeps the
// quantity actually removed. The dead heads leave the lot's pens at the death
// date; a lot placed in a single pen gets that pen on the record.
func (s *Service) RecordMortality(ctx context.Context, in RecordInput) (*Record, error) {
	if in.EstimatedLoss == nil {
		s.ensureCosted(ctx, in.LotID)
	}
	var (
		out   *Record
		moves []pen.Move
	)
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		out, moves, err = s.record(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.placements.Refresh(ctx, pensOf(moves), out.DeathDate)
	return out, nil
}

// ensureCosted recomputes a lot that has no cost snapshot yet.
func (s *Service) ensureCosted(ctx context.Context, lotID id.ID) {
	if s.recomputer == nil {
		return
	}
	l, err := s.lots.Get(ctx, lotID)
	if err != nil || l.CostSnapshotID != nil {
		return
	}
	if err := s.recomputer.Recompute(ctx, lotID); err != nil {
		logger.Warn(ctx, "lot cost recompute before mortality failed", "lot_id", lotID, "error", err)
	}
}

func (s *Service) record(ctx context.Context, in RecordInput) (*Record, []pen.Move, error) {
	r := &Record{
		ID:            id.New(),
		LotID:         in.LotID,
		PenID:         in.PenID,
		DeathDate:     in.DeathDate.UTC(),
		Quantity:      in.Quantity,
		Cause:         in.Cause,
		EstimatedLoss: in.EstimatedLoss,
		CreatedBy:     appctx.GetUserID(ctx),
		CreatedAt:     s.now(),
	}
	if err := r.Validate(ctx); err != nil {
		return nil, nil, err
	}

	l, applied, err := s.lots.AdjustQuantity(ctx, in.LotID, -in.Quantity, true)
	if err != nil {
		return nil, nil, err
	}
	if r.EstimatedLoss == nil && l.CostSnapshotID == nil {
		return nil, nil, apperror.NewBusinessRule(apperror.CodeBusinessRule,
			"lot cost has not been computed; recompute the lot or give estimatedLoss").
			WithDetail("lot_id", in.LotID)
	}
	removed := -applied
	if removed == 0 {
		return nil, nil, apperror.NewInsufficientQuantity(in.LotID.String(), in.Quantity, 0)
	}
	if removed < in.Quantity {
		logger.Warn(ctx, "mortality exceeds current quantity, clamped",
			"lot_id", in.LotID, "requested", in.Quantity, "removed", removed)
		r.Quantity = removed
	}

	r.UnitCost = l.CostPerHead
	r.Loss = ResolveLoss(r.Quantity, r.EstimatedLoss, r.UnitCost)

	moves := []pen.Move{{Quantity: r.Quantity}}
	if r.PenID != nil {
		moves[0].PenID = *r.PenID
	} else {
		occ, err := s.placements.Occupancy(ctx, r.DeathDate, r.DeathDate.Add(time.Nanosecond))
		if err != nil {
			return nil, nil, fmt.Errorf("load placements: %w", err)
		}
		moves = occ.Spread(r.LotID, r.Quantity, r.DeathDate)
		if len(moves) == 1 {
			penID := moves[0].PenID
			r.PenID = &penID
		}
	}
	if err := s.placements.Withdraw(ctx, r.LotID, moves, r.DeathDate); err != nil {
		return nil, nil, err
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return nil, nil, fmt.Errorf("create mortality record: %w", err)
	}
	if err := s.marker.MarkDirty(ctx, "mortality_recorded", types.MonthOf(r.DeathDate)); err != nil {
		return nil, nil, err
	}

	logger.Info(ctx, "mortality recorded",
		"record_id", r.ID,
		"lot_id", r.LotID,
		"quantity", r.Quantity,
		"loss", r.Loss,
		"current_quantity", l.CurrentQuantity,
	)
	return r, moves, nil
}

// RecordPenMortality spreads a pen-level death across the lots placed in the pen
// at the death date, in proportion to their heads, one record per lot.
func (s *Service) RecordPenMortality(ctx context.Context, penID id.ID, deathDate time.Time, quantity int, cause string) ([]Record, error) {
	if quantity <= 0 {
		return nil, apperror.NewValidation("quantity must be positive")
	}
	at := deathDate.UTC()
	occ, err := s.placements.Occupancy(ctx, at, at.Add(time.Nanosecond))
	if err != nil {
		return nil, fmt.Errorf("load placements: %w", err)
	}
	portions := occ.Distribute(penID, quantity, at)
	if len(portions) == 0 {
		return nil, apperror.NewBusinessRule(apperror.CodeBusinessRule, "pen has no lots placed at death date").
			WithDetail("pen_id", penID)
	}
	if heads := occ.HeadsIn(penID, at); quantity > heads {
		return nil, apperror.NewInsufficientQuantity(penID.String(), quantity, heads)
	}

	for _, p := range portions {
		s.ensureCosted(ctx, p.LotID)
	}

	var out []Record
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, p := range portions {
			pid := penID
			r, _, err := s.record(ctx, RecordInput{
				LotID:     p.LotID,
				PenID:     &pid,
				DeathDate: at,
				Quantity:  p.Quantity,
				Cause:     cause,
			})
			if err != nil {
				return err
			}
			out = append(out, *r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.placements.Refresh(ctx, []id.ID{penID}, at)
	return out, nil
}

// Compensate writes the reversing record of recordID and returns the heads to
// the lot, bounded by its head count, and to the pens they died in.
func (s *Service) Compensate(ctx context.Context, recordID id.ID, reason string) (*Record, error) {
	var (
		out   *Record
		moves []pen.Move
	)
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		orig, err := s.repo.Get(ctx, recordID)
		if err != nil {
			return err
		}
		if orig.IsCompensation() {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule, "a compensating record cannot be compensated")
		}
		done, err := s.repo.IsCompensated(ctx, recordID)
		if err != nil {
			return fmt.Errorf("check compensation: %w", err)
		}
		if done {
			return apperror.NewConflict("mortality record already compensated").WithDetail("record_id", recordID)
		}

		_, restored, err := s.lots.AdjustQuantity(ctx, orig.LotID, orig.Quantity, true)
		if err != nil {
			return err
		}
		if orig.PenID != nil {
			moves = []pen.Move{{PenID: *orig.PenID, Quantity: restored}}
		} else {
			occ, err := s.placements.Occupancy(ctx, orig.DeathDate.Add(-time.Nanosecond), orig.DeathDate.Add(time.Nanosecond))
			if err != nil {
				return fmt.Errorf("load placements: %w", err)
			}
			moves = occ.SpreadBefore(orig.LotID, restored, orig.DeathDate)
		}
		if err := s.placements.Restore(ctx, orig.LotID, moves, orig.DeathDate); err != nil {
			return err
		}

		cause := orig.Cause
		if reason != "" {
			cause = reason
		}
		origID := orig.ID
		r := &Record{
			ID:          id.New(),
			LotID:       orig.LotID,
			PenID:       orig.PenID,
			DeathDate:   orig.DeathDate,
			Quantity:    -orig.Quantity,
			Cause:       cause,
			UnitCost:    orig.UnitCost,
			Loss:        orig.Loss.Neg(),
			Compensates: &origID,
			CreatedBy:   appctx.GetUserID(ctx),
			CreatedAt:   s.now(),
		}
		if err := s.repo.Create(ctx, r); err != nil {
			return fmt.Errorf("create compensating record: %w", err)
		}
		if err := s.marker.MarkDirty(ctx, "mortality_compensated", types.MonthOf(r.DeathDate)); err != nil {
			return err
		}
		logger.Info(ctx, "mortality compensated", "record_id", r.ID, "compensates", origID)
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.placements.Refresh(ctx, pensOf(moves), out.DeathDate)
	return out, nil
}

func pensOf(moves []pen.Move) []id.ID {
	out := make([]id.ID, 0, len(moves))
	for _, m := range moves {
		out = append(out, m.PenID)
	}
	return out
}

// List returns the records of f.
func (s *Service) List(ctx context.Context, f Filter) ([]Record, error) {
	return s.repo.List(ctx, f)
}

// ComputeDeduction sums mortality losses attributed to sc over p.
func (s *Service) ComputeDeduction(ctx context.Context, sc scope.Scope, p types.Period) (*Deduction, error) {
	f := Filter{From: p.From, To: p.To}
	if sc.Type == scope.TypeLot && sc.ID != nil {
		f.LotIDs = []id.ID{*sc.ID}
	}
	records, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list mortality records: %w", err)
	}

	var occ *pen.Occupancy
	if sc.Type == scope.TypePen {
		occ, err = s.placements.Occupancy(ctx, p.From.Add(-time.Nanosecond), p.To)
		if err != nil {
			return nil, fmt.Errorf("load placements: %w", err)
		}
	}
	d := Deduct(records, sc, p, occ)
	return &d, nil
}
