// Package ledger provides the monetary records (expenses and revenues) and their allocations.
package ledger

import (
	"context"
	"strings"
	"time"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/entity"
	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/allocation"
	"boigordo/internal/domain/category"
)

// Kind distinguishes expenses from revenues.
type Kind string

const (
	KindExpense Kind = "EXPENSE"
	KindRevenue Kind = "REVENUE"
)

// IsValid reports whether k is known.
func (k Kind) IsValid() bool {
	return k == KindExpense || k == KindRevenue
}

// NumberPrefix is the document number prefix of the kind.
func (k Kind) NumberPrefix() string {
	if k == KindRevenue {
		return "RCT"
	}
	return "DSP"
}

// Record is an accrual-basis expense or revenue.
type Record struct {
	entity.BaseEntity
	entity.SoftDelete

	Number         string        `db:"number" json:"number"`
	Kind           Kind          `db:"kind" json:"kind"`
	Category       category.Code `db:"category" json:"category"`
	Description    string        `db:"description" json:"description"`
	Amount         types.Money   `db:"amount" json:"amount"`
	CompetenceDate time.Time     `db:"competence_date" json:"competenceDate"`
	DueDate        time.Time     `db:"due_date" json:"dueDate"`
	Settled        bool          `db:"settled" json:"settled"`
	SettledAt      *time.Time    `db:"settled_at" json:"settledAt,omitempty"`

	LotID          *id.ID `db:"lot_id" json:"lotId,omitempty"`
	PenID          *id.ID `db:"pen_id" json:"penId,omitempty"`
	SaleID         *id.ID `db:"sale_id" json:"saleId,omitempty"`
	CostCenterID   *id.ID `db:"cost_center_id" json:"costCenterId,omitempty"`
	PartnerID      *id.ID `db:"partner_id" json:"partnerId,omitempty"`
	PayerAccountID *id.ID `db:"payer_account_id" json:"payerAccountId,omitempty"`

	CreatedBy string `db:"created_by" json:"createdBy,omitempty"`

	Allocations []allocation.Allocation `db:"-" json:"allocations,omitempty"`
}

// IsLinked reports whether the record points at a lot or a pen.
func (r *Record) IsLinked() bool {
	return r.LotID != nil || r.PenID != nil
}

// Subject returns the matching input for category predicates.
func (r *Record) Subject() category.Subject {
	f, _ := r.Amount.Float64()
	return category.Subject{Kind: string(r.Kind), Description: r.Description, Amount: f}
}

// Validate checks record invariants.
func (r *Record) Validate(_ context.Context) error {
	if !r.Kind.IsValid() {
		return apperror.NewValidation("kind must be EXPENSE or REVENUE")
	}
	if r.Category.Normalize() == "" {
		return apperror.NewValidation("category is required")
	}
	if strings.TrimSpace(r.Description) == "" {
		return apperror.NewValidation("description is required")
	}
	if !r.Amount.IsPositive() {
		return apperror.NewValidation("amount must be positive")
	}
	if !r.Amount.Equal(types.RoundMoney(r.Amount)) {
		return apperror.NewValidation("amount has more than 2 decimal places")
	}
	if r.CompetenceDate.IsZero() {
		return apperror.NewValidation("competenceDate is required")
	}
	if r.DueDate.IsZero() {
		return apperror.NewValidation("dueDate is required")
	}
	return nil
}

// Allocated pairs an allocation with its record and the date it is recognized
// in statements: the linked sale's date, else the competence date.
type Allocated struct {
	Record       Record                `json:"record"`
	Allocation   allocation.Allocation `json:"allocation"`
	RecognizedAt time.Time             `json:"recognizedAt"`
}

// Filter narrows record listings.
type Filter struct {
	Kind           *Kind
	Category       *category.Code
	LotID          *id.ID
	PenID          *id.ID
	CostCenterIDs  []id.ID
	From           *time.Time
	To             *time.Time
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// AllocatedFilter selects allocations for aggregation.
// Empty target lists with All unset select nothing.
type AllocatedFilter struct {
	All    bool
	LotIDs []id.ID
	PenIDs []id.ID
	// RecognizedFrom/To bound RecognizedAt as [from, to). Zero leaves it open.
	RecognizedFrom time.Time
	RecognizedTo   time.Time
}
