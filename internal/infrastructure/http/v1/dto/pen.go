package dto

import (
	"boigordo/internal/core/id"
)

// CreatePenRequest registers a pen.
type CreatePenRequest struct {
	Code     string `json:"code" binding:"required"`
	Capacity int    `json:"capacity" binding:"min=0"`
}

// PlacementRequest places heads of a lot in a pen.
type PlacementRequest struct {
	LotID    id.ID `json:"lotId" binding:"required"`
	Quantity int   `json:"quantity" binding:"required,min=1"`
	At       Date  `json:"at"`
}

// ReleaseRequest ends a placement.
type ReleaseRequest struct {
	At Date `json:"at"`
}

// PenMortalityRequest records deaths in a pen, split across its lots.
type PenMortalityRequest struct {
	DeathDate Date   `json:"deathDate"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Cause     string `json:"cause"`
}

// AverageCostRequest picks the date of a pen average.
type AverageCostRequest struct {
	At *Date `form:"at"`
}
