// Package mortality records animal deaths, values the loss at the lot's cost per
// head and derives the statement deduction for a scope and period.
package mortality

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/pen"
	"boigordo/internal/domain/scope"
)

// Record is an immutable death event. A correction is a new record with
// negative quantity and loss that points at the corrected one.
type Record struct {
	ID            id.ID        `db:"id" json:"id"`
	LotID         id.ID        `db:"lot_id" json:"lotId"`
	PenID         *id.ID       `db:"pen_id" json:"penId,omitempty"`
	DeathDate     time.Time    `db:"death_date" json:"deathDate"`
	Quantity      int          `db:"quantity" json:"quantity"`
	Cause         string       `db:"cause" json:"cause"`
	EstimatedLoss *types.Money `db:"estimated_loss" json:"estimatedLoss,omitempty"`
	UnitCost      types.Money  `db:"unit_cost" json:"unitCost"`
	Loss          types.Money  `db:"loss" json:"loss"`
	Compensates   *id.ID       `db:"compensates" json:"compensates,omitempty"`
	CreatedBy     string       `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"createdAt"`
}

// IsCompensation reports whether r corrects another record.
func (r *Record) IsCompensation() bool {
	return r.Compensates != nil
}

// Validate checks a new, non-compensating record.
func (r *Record) Validate(_ context.Context) error {
	if r.Quantity <= 0 {
		return apperror.NewValidation("quantity must be positive")
	}
	if r.DeathDate.IsZero() {
		return apperror.NewValidation("deathDate is required")
	}
	if strings.TrimSpace(r.Cause) == "" {
		return apperror.NewValidation("cause is required")
	}
	if r.EstimatedLoss != nil && r.EstimatedLoss.IsNegative() {
		return apperror.NewValidation("estimatedLoss cannot be negative")
	}
	return nil
}

// ResolveLoss values the record: the estimate when given, else quantity × unitCost.
func ResolveLoss(quantity int, estimated *types.Money, unitCost types.Money) types.Money {
	if estimated != nil {
		return types.RoundMoney(*estimated)
	}
	return types.RoundMoney(unitCost.Mul(decimal.NewFromInt(int64(quantity))))
}

// Deduction is the mortality loss attributed to a scope over a period.
type Deduction struct {
	Scope   string          `json:"scope"`
	From    time.Time       `json:"from"`
	To      time.Time       `json:"to"`
	Total   types.Money     `json:"total"`
	Heads   decimal.Decimal `json:"heads"`
	Records int             `json:"records"`
}

// Deduct sums the losses of records dated in p and attributed to s. For a PEN
// scope, records carrying that pen count in full; records of a lot without a pen
// count by the share of the lot's heads placed in the pen at the death date.
func Deduct(records []Record, s scope.Scope, p types.Period, occ *pen.Occupancy) Deduction {
	d := Deduction{Scope: s.String(), From: p.From, To: p.To, Total: decimal.Zero, Heads: decimal.Zero}
	for _, r := range records {
		if !p.Contains(r.DeathDate) {
			continue
		}
		w := Weight(r, s, occ)
		if w.IsZero() {
			continue
		}
		d.Total = d.Total.Add(r.Loss.Mul(w))
		d.Heads = d.Heads.Add(decimal.NewFromInt(int64(r.Quantity)).Mul(w))
		d.Records++
	}
	d.Total = types.RoundMoney(d.Total)
	return d
}

// Weight is the fraction of r that belongs to s.
func Weight(r Record, s scope.Scope, occ *pen.Occupancy) decimal.Decimal {
	one := decimal.NewFromInt(1)
	switch s.Type {
	case scope.TypeGlobal:
		return one
	case scope.TypeLot:
		if s.Is(scope.TypeLot, r.LotID) {
			return one
		}
	case scope.TypePen:
		if r.PenID != nil {
			if s.Is(scope.TypePen, *r.PenID) {
				return one
			}
			return decimal.Zero
		}
		if occ != nil && s.ID != nil {
			return occ.PenShareOfLotBefore(r.LotID, *s.ID, r.DeathDate)
		}
	}
	return decimal.Zero
}

// Filter narrows record listings.
type Filter struct {
	LotIDs []id.ID
	From   time.Time
	To     time.Time
}
