package lot

import (
	"context"

	"boigordo/internal/core/id"
)

// Repository persists lots.
type Repository interface {
	Create(ctx context.Context, l *Lot) error
	Get(ctx context.Context, lotID id.ID) (*Lot, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, lotID id.ID) (*Lot, error)
	List(ctx context.Context, f Filter) ([]Lot, error)
	Exists(ctx context.Context, lotID id.ID) (bool, error)
	// Update writes status and current quantity with an optimistic check on
	// Version-1 (the caller has already called Touch).
	Update(ctx context.Context, l *Lot) error
}
