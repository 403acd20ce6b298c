// Package allocation validates and materializes the shares of a monetary record
// assigned to lots, pens or the company as a whole.
package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
)

// TargetType is the kind of entity an allocation points at.
type TargetType string

const (
	TargetLot    TargetType = "LOT"
	TargetPen    TargetType = "PEN"
	TargetGlobal TargetType = "GLOBAL"
)

// Epsilon is the tolerance on the 100% sum, in percent points.
var Epsilon = decimal.RequireFromString("0.01")

// Allocation is a persisted share of a record.
type Allocation struct {
	ID          id.ID            `db:"id" json:"id"`
	RecordID    id.ID            `db:"record_id" json:"recordId"`
	TargetType  TargetType       `db:"target_type" json:"targetType"`
	TargetID    *id.ID           `db:"target_id" json:"targetId,omitempty"`
	Amount      types.Money      `db:"amount" json:"amount"`
	Percentage  types.Percentage `db:"percentage" json:"percentage"`
	Synthesized bool             `db:"synthesized" json:"synthesized"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
}

// Candidate is a requested share before validation.
type Candidate struct {
	TargetType TargetType
	TargetID   *id.ID
	Percentage types.Percentage
}

// Subject is the view of a monetary record the validator needs.
type Subject struct {
	RecordID    id.ID
	Amount      types.Money
	Category    string
	LotID       *id.ID
	PenID       *id.ID
	RequiresLot bool
}

// TargetChecker confirms that referenced lots and pens exist.
type TargetChecker interface {
	LotExists(ctx context.Context, lotID id.ID) (bool, error)
	PenExists(ctx context.Context, penID id.ID) (bool, error)
}

// ExistsFunc reports whether an entity exists.
type ExistsFunc func(ctx context.Context, entityID id.ID) (bool, error)

// Targets implements TargetChecker with one lookup per target type.
type Targets struct {
	Lots ExistsFunc
	Pens ExistsFunc
}

func (t Targets) LotExists(ctx context.Context, lotID id.ID) (bool, error) { return t.Lots(ctx, lotID) }

func (t Targets) PenExists(ctx context.Context, penID id.ID) (bool, error) { return t.Pens(ctx, penID) }

// Validator turns candidates into allocations or rejects the whole set.
type Validator struct {
	targets TargetChecker
	now     func() time.Time
}

// NewValidator creates a validator.
func NewValidator(targets TargetChecker) *Validator {
	return &Validator{targets: targets, now: func() time.Time { return time.Now().UTC() }}
}

// Validate checks candidates against the record. With no candidates, a single
// 100% allocation to the record's lot, else its pen, else GLOBAL is synthesized.
func (v *Validator) Validate(ctx context.Context, s Subject, candidates []Candidate) ([]Allocation, error) {
	if !s.Amount.IsPositive() {
		return nil, apperror.NewValidation("amount must be positive")
	}
	if s.RequiresLot && s.LotID == nil {
		return nil, apperror.NewMissingRequiredLink(s.Category, "lot")
	}
	if s.LotID != nil {
		if err := v.checkTarget(ctx, TargetLot, s.LotID); err != nil {
			return nil, err
		}
	}
	if s.PenID != nil {
		if err := v.checkTarget(ctx, TargetPen, s.PenID); err != nil {
			return nil, err
		}
	}

	synthesized := false
	if len(candidates) == 0 {
		candidates = []Candidate{Default(s)}
		synthesized = true
	}

	sum := decimal.Zero
	seen := make(map[string]struct{}, len(candidates))
	for i, c := range candidates {
		if !c.Percentage.IsPositive() || c.Percentage.GreaterThan(types.Hundred()) {
			return nil, apperror.NewPercentageMismatch(c.Percentage.String()).
				WithDetail("index", i).
				WithDetail("reason", "each percentage must be > 0 and <= 100")
		}
		if err := v.checkTarget(ctx, c.TargetType, c.TargetID); err != nil {
			return nil, err
		}
		key := targetKey(c.TargetType, c.TargetID)
		if _, dup := seen[key]; dup {
			return nil, apperror.NewValidation("duplicate allocation target").WithDetail("target", key)
		}
		seen[key] = struct{}{}
		sum = sum.Add(c.Percentage)
	}
	if sum.Sub(types.Hundred()).Abs().GreaterThan(Epsilon) {
		return nil, apperror.NewPercentageMismatch(sum.String())
	}

	return Materialize(s, candidates, synthesized, v.now()), nil
}

// Default returns the implicit 100% candidate for a record.
func Default(s Subject) Candidate {
	switch {
	case s.LotID != nil:
		return Candidate{TargetType: TargetLot, TargetID: s.LotID, Percentage: types.Hundred()}
	case s.PenID != nil:
		return Candidate{TargetType: TargetPen, TargetID: s.PenID, Percentage: types.Hundred()}
	default:
		return Candidate{TargetType: TargetGlobal, Percentage: types.Hundred()}
	}
}

// Materialize assigns amounts; the last share absorbs rounding so the amounts
// add up to the record total exactly.
func Materialize(s Subject, candidates []Candidate, synthesized bool, at time.Time) []Allocation {
	out := make([]Allocation, 0, len(candidates))
	remaining := s.Amount
	for i, c := range candidates {
		amount := types.PercentOf(s.Amount, c.Percentage)
		if i == len(candidates)-1 {
			amount = remaining
		}
		remaining = remaining.Sub(amount)
		out = append(out, Allocation{
			ID:          id.New(),
			RecordID:    s.RecordID,
			TargetType:  c.TargetType,
			TargetID:    c.TargetID,
			Amount:      amount,
			Percentage:  c.Percentage,
			Synthesized: synthesized,
			CreatedAt:   at,
		})
	}
	return out
}

// SumPercentages adds up the shares of a record.
func SumPercentages(allocs []Allocation) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range allocs {
		sum = sum.Add(a.Percentage)
	}
	return sum
}

// IsBalanced reports whether allocs cover total: 100 ± Epsilon and exact amounts.
func IsBalanced(allocs []Allocation, total types.Money) bool {
	if len(allocs) == 0 {
		return false
	}
	amount := decimal.Zero
	for _, a := range allocs {
		amount = amount.Add(a.Amount)
	}
	return SumPercentages(allocs).Sub(types.Hundred()).Abs().LessThanOrEqual(Epsilon) && amount.Equal(total)
}

func (v *Validator) checkTarget(ctx context.Context, t TargetType, targetID *id.ID) error {
	var (
		ok  bool
		err error
	)
	switch t {
	case TargetGlobal:
		if targetID != nil {
			return apperror.NewInvalidTarget(string(t), targetID).WithDetail("reason", "GLOBAL takes no id")
		}
		return nil
	case TargetLot:
		if targetID == nil {
			return apperror.NewInvalidTarget(string(t), nil)
		}
		ok, err = v.targets.LotExists(ctx, *targetID)
	case TargetPen:
		if targetID == nil {
			return apperror.NewInvalidTarget(string(t), nil)
		}
		ok, err = v.targets.PenExists(ctx, *targetID)
	default:
		return apperror.NewInvalidTarget(string(t), targetID)
	}
	if err != nil {
		return fmt.Errorf("check %s target: %w", t, err)
	}
	if !ok {
		return apperror.NewInvalidTarget(string(t), *targetID)
	}
	return nil
}

func targetKey(t TargetType, targetID *id.ID) string {
	if targetID == nil {
		return string(t)
	}
	return string(t) + ":" + targetID.String()
}
