package lotcost

import (
	"context"

	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
)

// Repository persists snapshots and swaps them onto lots.
type Repository interface {
	InsertSnapshot(ctx context.Context, b *Breakdown) error
	Snapshot(ctx context.Context, snapshotID id.ID) (*Breakdown, error)
	// SwapLotCost points the lot at b when its cost_version still equals
	// expectedVersion. It reports false on a version mismatch.
	SwapLotCost(ctx context.Context, lotID id.ID, expectedVersion int, b *Breakdown) (bool, error)
	// ActivityMonths lists the months holding sales or mortality of the lot.
	ActivityMonths(ctx context.Context, lotID id.ID) ([]types.Month, error)
}
