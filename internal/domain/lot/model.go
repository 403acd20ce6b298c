// Package lot provides the acquisition lot: purchase valuation, head count and lifecycle.
package lot

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/entity"
	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
)

// Status is the lot lifecycle state.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusReceived  Status = "RECEIVED"
	StatusConfined  Status = "CONFINED"
	StatusSold      Status = "SOLD"
	StatusClosed    Status = "CLOSED"
)

var transitions = map[Status][]Status{
	StatusConfirmed: {StatusReceived, StatusClosed},
	StatusReceived:  {StatusConfined, StatusSold, StatusClosed},
	StatusConfined:  {StatusSold, StatusClosed},
	StatusSold:      {StatusClosed},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusConfirmed, StatusReceived, StatusConfined, StatusSold, StatusClosed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows s → to.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// KgPerArroba is the carcass weight of one arroba.
var KgPerArroba = decimal.NewFromInt(15)

// DefaultCarcassYield applies only to lots that never had a yield recorded.
var DefaultCarcassYield = decimal.NewFromInt(50)

// Lot is one acquisition batch of animals.
type Lot struct {
	entity.BaseEntity

	Code            string            `db:"code" json:"code"`
	VendorID        *id.ID            `db:"vendor_id" json:"vendorId,omitempty"`
	PayerAccountID  *id.ID            `db:"payer_account_id" json:"payerAccountId,omitempty"`
	PurchaseDate    time.Time         `db:"purchase_date" json:"purchaseDate"`
	HeadCount       int               `db:"head_count" json:"headCount"`
	PurchaseWeight  types.Money       `db:"purchase_weight" json:"purchaseWeight"`
	CarcassYield    *types.Percentage `db:"carcass_yield" json:"carcassYield,omitempty"`
	PricePerArroba  types.Money       `db:"price_per_arroba" json:"pricePerArroba"`
	PurchaseValue   types.Money       `db:"purchase_value" json:"purchaseValue"`
	FreightCost     types.Money       `db:"freight_cost" json:"freightCost"`
	Commission      types.Money       `db:"commission" json:"commission"`
	CurrentQuantity int               `db:"current_quantity" json:"currentQuantity"`
	Status          Status            `db:"status" json:"status"`

	// Derived by the lot cost recompute; never edited directly.
	TotalCost      types.Money `db:"total_cost" json:"totalCost"`
	CostPerHead    types.Money `db:"cost_per_head" json:"costPerHead"`
	CostVersion    int         `db:"cost_version" json:"costVersion"`
	CostSnapshotID *id.ID      `db:"cost_snapshot_id" json:"costSnapshotId,omitempty"`
	CostComputedAt *time.Time  `db:"cost_computed_at" json:"costComputedAt,omitempty"`
}

// Yield returns the stored carcass yield, or fallback when none was recorded.
func (l *Lot) Yield(fallback types.Percentage) types.Percentage {
	if l.CarcassYield != nil {
		return *l.CarcassYield
	}
	return fallback
}

// ComputePurchaseValue prices the carcass in arrobas:
// (weight × yield / 100) / 15 × pricePerArroba.
// The stored yield always wins; fallback is only for lots without one.
func (l *Lot) ComputePurchaseValue(fallback types.Percentage) types.Money {
	carcassKg := l.PurchaseWeight.Mul(l.Yield(fallback)).Div(types.Hundred())
	return types.RoundMoney(carcassKg.Div(KgPerArroba).Mul(l.PricePerArroba))
}

// TransitionTo moves the lot through its lifecycle.
func (l *Lot) TransitionTo(to Status) error {
	if !l.Status.CanTransitionTo(to) {
		return apperror.NewInvalidTransition("lot", string(l.Status), string(to))
	}
	l.Status = to
	l.Touch()
	return nil
}

// AdjustQuantity applies delta to the current head count.
// The result is clamped to [0, HeadCount]; the applied delta is returned.
func (l *Lot) AdjustQuantity(delta int) int {
	next := l.CurrentQuantity + delta
	if next < 0 {
		next = 0
	}
	if next > l.HeadCount {
		next = l.HeadCount
	}
	applied := next - l.CurrentQuantity
	l.CurrentQuantity = next
	l.Touch()
	return applied
}

// IsOpen reports whether the lot still holds animals that can be sold or die.
func (l *Lot) IsOpen() bool {
	return l.Status != StatusSold && l.Status != StatusClosed
}

// Validate checks lot invariants.
func (l *Lot) Validate(_ context.Context) error {
	if strings.TrimSpace(l.Code) == "" {
		return apperror.NewValidation("code is required")
	}
	if l.HeadCount <= 0 {
		return apperror.NewValidation("headCount must be positive")
	}
	if l.PurchaseDate.IsZero() {
		return apperror.NewValidation("purchaseDate is required")
	}
	if !l.PurchaseWeight.IsPositive() {
		return apperror.NewValidation("purchaseWeight must be positive")
	}
	if l.CarcassYield != nil && (!l.CarcassYield.IsPositive() || l.CarcassYield.GreaterThan(types.Hundred())) {
		return apperror.NewValidation("carcassYield must be in (0, 100]")
	}
	if l.PricePerArroba.IsNegative() || l.FreightCost.IsNegative() || l.Commission.IsNegative() {
		return apperror.NewValidation("prices and costs cannot be negative")
	}
	if l.CurrentQuantity < 0 || l.CurrentQuantity > l.HeadCount {
		return apperror.NewValidation("currentQuantity must be within [0, headCount]")
	}
	if !l.Status.IsValid() {
		return apperror.NewValidation("invalid status").WithDetail("status", l.Status)
	}
	return nil
}

// Filter narrows lot listings.
type Filter struct {
	Status   *Status
	OnlyOpen bool
	Limit    int
	Offset   int
}
