// Package statement generates the monthly income statement (DRE) for the whole
// operation, a lot or a pen, and rolls months up into a perpetual report.
package statement

import (
	"time"

	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/scope"
)

// Status tells whether every input could be classified and valued.
type Status string

const (
	StatusComplete   Status = "COMPLETE"
	StatusIncomplete Status = "INCOMPLETE"
)

// Statement is one stored DRE row, unique per (reference month, scope).
type Statement struct {
	ID                  id.ID       `db:"id" json:"id"`
	ReferenceMonth      time.Time   `db:"reference_month" json:"referenceMonth"`
	ScopeType           scope.Type  `db:"scope_type" json:"scopeType"`
	ScopeID             *id.ID      `db:"scope_id" json:"scopeId,omitempty"`
	GrossRevenue        types.Money `db:"gross_revenue" json:"grossRevenue"`
	SalesDeductions     types.Money `db:"sales_deductions" json:"salesDeductions"`
	MortalityDeductions types.Money `db:"mortality_deductions" json:"mortalityDeductions"`
	Deductions          types.Money `db:"deductions" json:"deductions"`
	NetRevenue          types.Money `db:"net_revenue" json:"netRevenue"`
	TotalCosts          types.Money `db:"total_costs" json:"totalCosts"`
	GrossProfit         types.Money `db:"gross_profit" json:"grossProfit"`
	TotalExpenses       types.Money `db:"total_expenses" json:"totalExpenses"`
	NetProfit           types.Money `db:"net_profit" json:"netProfit"`
	SoldHeads           int         `db:"sold_heads" json:"soldHeads"`
	Status              Status      `db:"status" json:"status"`
	Reasons             []string    `db:"incomplete_reasons" json:"incompleteReasons,omitempty"`
	GeneratedAt         time.Time   `db:"generated_at" json:"generatedAt"`
	InputRevision       int64       `db:"input_revision" json:"inputRevision"`
	Version             int         `db:"version" json:"version"`
}

// Month returns the reference month.
func (s *Statement) Month() types.Month {
	return types.MonthOf(s.ReferenceMonth)
}

// Scope returns the statement scope.
func (s *Statement) Scope() scope.Scope {
	return scope.Scope{Type: s.ScopeType, ID: s.ScopeID}
}

// MonthLine is one month of a perpetual report.
type MonthLine struct {
	Month           string      `json:"month"`
	GrossRevenue    types.Money `json:"grossRevenue"`
	Deductions      types.Money `json:"deductions"`
	TotalCosts      types.Money `json:"totalCosts"`
	TotalExpenses   types.Money `json:"totalExpenses"`
	NetProfit       types.Money `json:"netProfit"`
	CumulativeNet   types.Money `json:"cumulativeNet"`
	Status          Status      `json:"status"`
	GeneratedAt     *time.Time  `json:"generatedAt,omitempty"`
	HasStatement    bool        `json:"hasStatement"`
	IncompleteNotes []string    `json:"incompleteReasons,omitempty"`
}

// Totals sums a perpetual report.
type Totals struct {
	GrossRevenue  types.Money `json:"grossRevenue"`
	Deductions    types.Money `json:"deductions"`
	TotalCosts    types.Money `json:"totalCosts"`
	TotalExpenses types.Money `json:"totalExpenses"`
	NetProfit     types.Money `json:"netProfit"`
}

// PerpetualReport rolls monthly statements up over a range.
type PerpetualReport struct {
	Scope      string      `json:"scope"`
	From       string      `json:"from"`
	To         string      `json:"to"`
	Months     []MonthLine `json:"months"`
	Totals     Totals      `json:"totals"`
	Best       *MonthLine  `json:"best,omitempty"`
	Worst      *MonthLine  `json:"worst,omitempty"`
	Incomplete bool        `json:"incomplete"`
}
