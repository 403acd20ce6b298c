package dto

import (
	"boigordo/internal/core/id"
	"boigordo/internal/domain/category"
	"boigordo/internal/domain/costcenter"
)

// CategoryMappingRequest adds a new version of a category mapping.
type CategoryMappingRequest struct {
	Category      string              `json:"category" binding:"required"`
	DisplayName   string              `json:"displayName"`
	Bucket        category.CostBucket `json:"costBucket"`
	Line          category.Line       `json:"statementLine" binding:"required"`
	Section       category.Section    `json:"cashFlowSection"`
	Direction     category.Direction  `json:"cashFlowDirection"`
	RequiresLot   bool                `json:"requiresLot"`
	Retired       bool                `json:"retired"`
	Match         string              `json:"match"`
	EffectiveFrom Date                `json:"effectiveFrom"`
}

// ToMapping converts the request.
func (r CategoryMappingRequest) ToMapping() category.Mapping {
	return category.Mapping{
		Category:      category.Code(r.Category),
		DisplayName:   r.DisplayName,
		Bucket:        r.Bucket,
		Line:          r.Line,
		Section:       r.Section,
		Direction:     r.Direction,
		RequiresLot:   r.RequiresLot,
		Retired:       r.Retired,
		Match:         r.Match,
		EffectiveFrom: r.EffectiveFrom.Time,
	}
}

// CreateCostCenterRequest registers a cost center.
type CreateCostCenterRequest struct {
	Code     string          `json:"code" binding:"required"`
	Name     string          `json:"name" binding:"required"`
	Type     costcenter.Type `json:"type" binding:"required"`
	ParentID *id.ID          `json:"parentId"`
}

// ToInput converts the request.
func (r CreateCostCenterRequest) ToInput() costcenter.CreateInput {
	return costcenter.CreateInput{Code: r.Code, Name: r.Name, Type: r.Type, ParentID: r.ParentID}
}
