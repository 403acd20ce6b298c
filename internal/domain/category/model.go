// Package category maps ledger category codes onto cost buckets, statement lines
// and cash-flow sections. Mappings are versioned by effective date: a rename or
// reclassification is a new row, never a rewrite of history.
package category

import (
	"context"
	"strings"
	"time"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
)

// Code identifies a ledger category, e.g. "animal_purchase".
type Code string

// Normalize lower-cases and trims the code.
func (c Code) Normalize() Code {
	return Code(strings.ToLower(strings.TrimSpace(string(c))))
}

// CostBucket is the lot cost breakdown group a category feeds.
type CostBucket string

const (
	BucketAcquisition CostBucket = "acquisition"
	BucketFreight     CostBucket = "freight"
	BucketCommission  CostBucket = "commission"
	BucketHealth      CostBucket = "health"
	BucketFeed        CostBucket = "feed"
	BucketOperational CostBucket = "operational"
	BucketOther       CostBucket = "other"
	BucketNone        CostBucket = "none"
)

// CostBuckets lists the breakdown buckets in display order.
var CostBuckets = []CostBucket{
	BucketAcquisition, BucketFreight, BucketCommission,
	BucketHealth, BucketFeed, BucketOperational, BucketOther,
}

// IsValid reports whether b is a known bucket.
func (b CostBucket) IsValid() bool {
	switch b {
	case BucketAcquisition, BucketFreight, BucketCommission, BucketHealth,
		BucketFeed, BucketOperational, BucketOther, BucketNone:
		return true
	}
	return false
}

// Line is the income statement line a category contributes to.
type Line string

const (
	LineRevenue        Line = "revenue"
	LineSalesDeduction Line = "sales_deduction"
	LineCost           Line = "cost"
	LineExpense        Line = "expense"
	LineNone           Line = "none"
)

// IsValid reports whether l is a known line.
func (l Line) IsValid() bool {
	switch l {
	case LineRevenue, LineSalesDeduction, LineCost, LineExpense, LineNone:
		return true
	}
	return false
}

// Section is the cash-flow statement activity.
type Section string

const (
	SectionOperating Section = "operating"
	SectionInvesting Section = "investing"
	SectionFinancing Section = "financing"
)

// IsValid reports whether s is a known section.
func (s Section) IsValid() bool {
	return s == SectionOperating || s == SectionInvesting || s == SectionFinancing
}

// Direction tells whether a category moves cash in or out.
type Direction string

const (
	DirectionInflow  Direction = "inflow"
	DirectionOutflow Direction = "outflow"
)

// Mapping is one effective-dated classification of a category.
type Mapping struct {
	ID            id.ID      `db:"id" json:"id"`
	Category      Code       `db:"category" json:"category"`
	DisplayName   string     `db:"display_name" json:"displayName"`
	Bucket        CostBucket `db:"cost_bucket" json:"costBucket"`
	Line          Line       `db:"statement_line" json:"statementLine"`
	Section       Section    `db:"cash_flow_section" json:"cashFlowSection"`
	Direction     Direction  `db:"cash_flow_direction" json:"cashFlowDirection"`
	RequiresLot   bool       `db:"requires_lot" json:"requiresLot"`
	Retired       bool       `db:"retired" json:"retired"`
	Match         string     `db:"match_expr" json:"match,omitempty"`
	EffectiveFrom time.Time  `db:"effective_from" json:"effectiveFrom"`
	EffectiveTo   *time.Time `db:"effective_to" json:"effectiveTo,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

// EffectiveAt reports whether the mapping applies at t.
func (m Mapping) EffectiveAt(t time.Time) bool {
	if t.Before(m.EffectiveFrom) {
		return false
	}
	return m.EffectiveTo == nil || t.Before(*m.EffectiveTo)
}

// IsLotCost reports whether records of this mapping feed a lot's cost breakdown.
func (m Mapping) IsLotCost() bool {
	return m.Line == LineCost && m.Bucket != BucketNone
}

// Validate checks mapping invariants.
func (m Mapping) Validate(_ context.Context) error {
	if m.Category.Normalize() == "" {
		return apperror.NewValidation("category is required")
	}
	if !m.Bucket.IsValid() {
		return apperror.NewValidation("invalid cost bucket").WithDetail("cost_bucket", m.Bucket)
	}
	if !m.Line.IsValid() {
		return apperror.NewValidation("invalid statement line").WithDetail("statement_line", m.Line)
	}
	if !m.Section.IsValid() {
		return apperror.NewValidation("invalid cash flow section").WithDetail("cash_flow_section", m.Section)
	}
	if m.Direction != DirectionInflow && m.Direction != DirectionOutflow {
		return apperror.NewValidation("invalid cash flow direction").WithDetail("cash_flow_direction", m.Direction)
	}
	if m.Line == LineCost && m.Bucket == BucketNone {
		return apperror.NewValidation("cost line requires a cost bucket")
	}
	if m.EffectiveFrom.IsZero() {
		return apperror.NewValidation("effectiveFrom is required")
	}
	if m.EffectiveTo != nil && !m.EffectiveTo.After(m.EffectiveFrom) {
		return apperror.NewValidation("effectiveTo must be after effectiveFrom")
	}
	return nil
}

// Subject is the record data a match predicate can inspect.
type Subject struct {
	Kind        string
	Description string
	Amount      float64
}

// Resolver finds the mapping that applies to a category at a date.
type Resolver interface {
	Resolve(code Code, at time.Time, subject Subject) (Mapping, bool)
}
