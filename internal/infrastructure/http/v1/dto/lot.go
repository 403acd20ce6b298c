package dto

import (
	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/lot"
)

// CreateLotRequest confirms a cattle purchase.
type CreateLotRequest struct {
	Code           string            `json:"code" binding:"required"`
	VendorID       *id.ID            `json:"vendorId"`
	PayerAccountID *id.ID            `json:"payerAccountId"`
	PurchaseDate   Date              `json:"purchaseDate"`
	HeadCount      int               `json:"headCount" binding:"required,min=1"`
	PurchaseWeight types.Money       `json:"purchaseWeight"`
	CarcassYield   *types.Percentage `json:"carcassYield"`
	PricePerArroba types.Money       `json:"pricePerArroba"`
	FreightCost    types.Money       `json:"freightCost"`
	Commission     types.Money       `json:"commission"`
}

// ToInput converts the request.
func (r CreateLotRequest) ToInput() lot.CreateInput {
	return lot.CreateInput{
		Code:           r.Code,
		VendorID:       r.VendorID,
		PayerAccountID: r.PayerAccountID,
		PurchaseDate:   r.PurchaseDate.Time,
		HeadCount:      r.HeadCount,
		PurchaseWeight: r.PurchaseWeight,
		CarcassYield:   r.CarcassYield,
		PricePerArroba: r.PricePerArroba,
		FreightCost:    r.FreightCost,
		Commission:     r.Commission,
	}
}

// TransitionRequest moves a lot to another status.
type TransitionRequest struct {
	Status lot.Status `json:"status" binding:"required"`
}

// ListLotsRequest filters lot listings.
type ListLotsRequest struct {
	PageRequest
	Status   string `form:"status"`
	OnlyOpen bool   `form:"open"`
}

// ToFilter converts the request.
func (r ListLotsRequest) ToFilter() lot.Filter {
	r.Defaults()
	f := lot.Filter{OnlyOpen: r.OnlyOpen, Limit: r.Limit, Offset: r.Offset}
	if r.Status != "" {
		s := lot.Status(r.Status)
		f.Status = &s
	}
	return f
}
