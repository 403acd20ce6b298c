package dto

import (
	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/allocation"
	"boigordo/internal/domain/category"
	"boigordo/internal/domain/ledger"
)

// AllocationRequest is one explicit allocation of a new record.
type AllocationRequest struct {
	TargetType allocation.TargetType `json:"targetType" binding:"required"`
	TargetID   *id.ID                `json:"targetId"`
	Percentage types.Percentage      `json:"percentage"`
}

// CreateRecordRequest creates an expense or revenue record.
type CreateRecordRequest struct {
	Kind           ledger.Kind         `json:"kind" binding:"required"`
	Category       string              `json:"category" binding:"required"`
	Description    string              `json:"description" binding:"required"`
	Amount         types.Money         `json:"amount"`
	CompetenceDate Date                `json:"competenceDate"`
	DueDate        *Date               `json:"dueDate"`
	Settled        bool                `json:"settled"`
	SettledAt      *Date               `json:"settledAt"`
	LotID          *id.ID              `json:"lotId"`
	PenID          *id.ID              `json:"penId"`
	SaleID         *id.ID              `json:"saleId"`
	CostCenterID   *id.ID              `json:"costCenterId"`
	PartnerID      *id.ID              `json:"partnerId"`
	PayerAccountID *id.ID              `json:"payerAccountId"`
	Allocations    []AllocationRequest `json:"allocations"`
}

// ToInput converts the request. A missing due date defaults to the competence date.
func (r CreateRecordRequest) ToInput() ledger.CreateInput {
	in := ledger.CreateInput{
		Kind:           r.Kind,
		Category:       category.Code(r.Category),
		Description:    r.Description,
		Amount:         r.Amount,
		CompetenceDate: r.CompetenceDate.Time,
		DueDate:        r.CompetenceDate.Time,
		Settled:        r.Settled,
		SettledAt:      r.SettledAt.TimePtr(),
		LotID:          r.LotID,
		PenID:          r.PenID,
		SaleID:         r.SaleID,
		CostCenterID:   r.CostCenterID,
		PartnerID:      r.PartnerID,
		PayerAccountID: r.PayerAccountID,
	}
	if r.DueDate != nil && !r.DueDate.IsZero() {
		in.DueDate = r.DueDate.Time
	}
	for _, a := range r.Allocations {
		in.Allocations = append(in.Allocations, allocation.Candidate{
			TargetType: a.TargetType,
			TargetID:   a.TargetID,
			Percentage: a.Percentage,
		})
	}
	return in
}

// ListRecordsRequest filters record listings.
type ListRecordsRequest struct {
	PageRequest
	Kind           string   `form:"kind"`
	Category       string   `form:"category"`
	LotID          string   `form:"lotId"`
	PenID          string   `form:"penId"`
	CostCenterIDs  []string `form:"costCenterId"`
	From           *Date    `form:"from"`
	To             *Date    `form:"to"`
	IncludeDeleted bool     `form:"includeDeleted"`
}

// ToFilter converts the request. To is exclusive.
func (r ListRecordsRequest) ToFilter() (ledger.Filter, error) {
	r.Defaults()
	f := ledger.Filter{
		From:           r.From.TimePtr(),
		To:             r.To.TimePtr(),
		IncludeDeleted: r.IncludeDeleted,
		Limit:          r.Limit,
		Offset:         r.Offset,
	}
	if r.Kind != "" {
		k := ledger.Kind(r.Kind)
		f.Kind = &k
	}
	if r.Category != "" {
		c := category.Code(r.Category)
		f.Category = &c
	}
	var err error
	if f.LotID, err = ParseOptionalID(r.LotID); err != nil {
		return f, err
	}
	if f.PenID, err = ParseOptionalID(r.PenID); err != nil {
		return f, err
	}
	for _, raw := range r.CostCenterIDs {
		v, err := id.Parse(raw)
		if err != nil {
			return f, err
		}
		f.CostCenterIDs = append(f.CostCenterIDs, v)
	}
	return f, nil
}

// SettleRequest marks a record paid or received.
type SettleRequest struct {
	SettledAt *Date  `json:"settledAt"`
	AccountID *id.ID `json:"accountId"`
}
