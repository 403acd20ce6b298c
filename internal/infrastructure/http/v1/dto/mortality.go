package dto

import (
	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/mortality"
)

// CreateMortalityRequest records deaths in a lot.
type CreateMortalityRequest struct {
	LotID         id.ID        `json:"lotId" binding:"required"`
	PenID         *id.ID       `json:"penId"`
	DeathDate     Date         `json:"deathDate"`
	Quantity      int          `json:"quantity" binding:"required,min=1"`
	Cause         string       `json:"cause"`
	EstimatedLoss *types.Money `json:"estimatedLoss"`
}

// ToInput converts the request.
func (r CreateMortalityRequest) ToInput() mortality.RecordInput {
	return mortality.RecordInput{
		LotID:         r.LotID,
		PenID:         r.PenID,
		DeathDate:     r.DeathDate.Time,
		Quantity:      r.Quantity,
		Cause:         r.Cause,
		EstimatedLoss: r.EstimatedLoss,
	}
}

// CompensateRequest reverses a mortality record.
type CompensateRequest struct {
	Reason string `json:"reason" binding:"required"`
}
