package dto

import (
	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/sale"
)

// CreateSaleRequest registers a sale of heads from a lot.
type CreateSaleRequest struct {
	LotID         id.ID        `json:"lotId" binding:"required"`
	PenID         *id.ID       `json:"penId"`
	BuyerID       *id.ID       `json:"buyerId"`
	SaleDate      Date         `json:"saleDate"`
	Quantity      int          `json:"quantity" binding:"required,min=1"`
	TotalWeight   types.Money  `json:"totalWeight"`
	PricePerKg    types.Money  `json:"pricePerKg"`
	GrossValue    *types.Money `json:"grossValue"`
	RecordRevenue *bool        `json:"recordRevenue"`
}

// ToInput converts the request. Revenue is recorded unless disabled.
func (r CreateSaleRequest) ToInput() sale.CreateInput {
	return sale.CreateInput{
		LotID:         r.LotID,
		PenID:         r.PenID,
		BuyerID:       r.BuyerID,
		SaleDate:      r.SaleDate.Time,
		Quantity:      r.Quantity,
		TotalWeight:   r.TotalWeight,
		PricePerKg:    r.PricePerKg,
		GrossValue:    r.GrossValue,
		RecordRevenue: r.RecordRevenue == nil || *r.RecordRevenue,
	}
}
