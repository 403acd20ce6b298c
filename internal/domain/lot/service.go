package lot

import (
	"context"
	"fmt"
	"time"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/entity"
	"boigordo/internal/core/id"
	"boigordo/internal/core/tx"
	"boigordo/internal/core/types"
	"boigordo/pkg/logger"
)

// AcquisitionRecorder writes the ledger records that make up a new lot's cost.
type AcquisitionRecorder interface {
	RecordAcquisition(ctx context.Context, l *Lot) error
}

// CostRecomputer re-derives a lot's cost from its records.
type CostRecomputer interface {
	Recompute(ctx context.Context, lotID id.ID) error
}

// Service provides lot operations.
type Service struct {
	repo         Repository
	tx           tx.Manager
	recorder     AcquisitionRecorder
	recomputer   CostRecomputer
	defaultYield types.Percentage
}

// NewService creates a lot service. defaultYield is used only for lots created without a yield.
func NewService(repo Repository, txm tx.Manager, recorder AcquisitionRecorder, defaultYield types.Percentage) *Service {
	if !defaultYield.IsPositive() {
		defaultYield = DefaultCarcassYield
	}
	return &Service{
		repo:         repo,
		tx:           txm,
		recorder:     recorder,
		defaultYield: defaultYield,
	}
}

// SetRecomputer wires the cost recompute hook (resolves the lot ↔ lotcost construction order).
func (s *Service) SetRecomputer(r CostRecomputer) {
	s.recomputer = r
}

// CreateInput holds the purchase data of a new lot.
type CreateInput struct {
	Code           string
	VendorID       *id.ID
	PayerAccountID *id.ID
	PurchaseDate   time.Time
	HeadCount      int
	PurchaseWeight types.Money
	CarcassYield   *types.Percentage
	PricePerArroba types.Money
	FreightCost    types.Money
	Commission     types.Money
}

// Create confirms a purchase: values it, stores the lot and writes its
// acquisition, freight and commission records in one transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Lot, error) {
	l := &Lot{
		BaseEntity:      entity.NewBaseEntity(),
		Code:            in.Code,
		VendorID:        in.VendorID,
		PayerAccountID:  in.PayerAccountID,
		PurchaseDate:    in.PurchaseDate.UTC(),
		HeadCount:       in.HeadCount,
		PurchaseWeight:  in.PurchaseWeight,
		CarcassYield:    in.CarcassYield,
		PricePerArroba:  in.PricePerArroba,
		FreightCost:     types.RoundMoney(in.FreightCost),
		Commission:      types.RoundMoney(in.Commission),
		CurrentQuantity: in.HeadCount,
		Status:          StatusConfirmed,
	}
	if err := l.Validate(ctx); err != nil {
		return nil, err
	}
	l.PurchaseValue = l.ComputePurchaseValue(s.defaultYield)

	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, l); err != nil {
			return fmt.Errorf("create lot: %w", err)
		}
		if s.recorder != nil {
			if err := s.recorder.RecordAcquisition(ctx, l); err != nil {
				return fmt.Errorf("record acquisition: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "lot created",
		"lot_id", l.ID,
		"code", l.Code,
		"head_count", l.HeadCount,
		"purchase_value", l.PurchaseValue,
	)

	if s.recomputer != nil {
		if err := s.recomputer.Recompute(ctx, l.ID); err != nil {
			// The records are committed; the nightly recompute will catch up.
			logger.Warn(ctx, "initial lot cost recompute failed", "lot_id", l.ID, "error", err)
		} else if fresh, err := s.repo.Get(ctx, l.ID); err == nil {
			l = fresh
		}
	}
	return l, nil
}

// Get returns a lot by id.
func (s *Service) Get(ctx context.Context, lotID id.ID) (*Lot, error) {
	return s.repo.Get(ctx, lotID)
}

// List returns lots matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Lot, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Limit > 1000 {
		f.Limit = 1000
	}
	return s.repo.List(ctx, f)
}

// Exists reports whether the lot exists.
func (s *Service) Exists(ctx context.Context, lotID id.ID) (bool, error) {
	return s.repo.Exists(ctx, lotID)
}

// Transition moves a lot to a new status.
func (s *Service) Transition(ctx context.Context, lotID id.ID, to Status) (*Lot, error) {
	var out *Lot
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		l, err := s.repo.GetForUpdate(ctx, lotID)
		if err != nil {
			return err
		}
		from := l.Status
		if err := l.TransitionTo(to); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, l); err != nil {
			return fmt.Errorf("update lot: %w", err)
		}
		logger.Info(ctx, "lot status changed", "lot_id", lotID, "from", from, "to", to)
		out = l
		return nil
	})
	return out, err
}

// AdjustQuantity applies delta to the lot's current head count inside the caller's
// transaction and returns the delta actually applied. Removing more heads than
// available fails unless clamp is set, in which case the count stops at zero.
func (s *Service) AdjustQuantity(ctx context.Context, lotID id.ID, delta int, clamp bool) (*Lot, int, error) {
	l, err := s.repo.GetForUpdate(ctx, lotID)
	if err != nil {
		return nil, 0, err
	}
	if !clamp && delta < 0 && -delta > l.CurrentQuantity {
		return nil, 0, apperror.NewInsufficientQuantity(lotID.String(), -delta, l.CurrentQuantity)
	}
	applied := l.AdjustQuantity(delta)
	if err := s.repo.Update(ctx, l); err != nil {
		return nil, 0, fmt.Errorf("update lot quantity: %w", err)
	}
	return l, applied, nil
}

// MarkSold moves a lot with no heads left to SOLD.
func (s *Service) MarkSold(ctx context.Context, l *Lot) error {
	if l.CurrentQuantity > 0 || !l.Status.CanTransitionTo(StatusSold) {
		return nil
	}
	if err := l.TransitionTo(StatusSold); err != nil {
		return err
	}
	return s.repo.Update(ctx, l)
}
