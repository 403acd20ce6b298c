package ledger

import (
	"context"
	"time"

	"boigordo/internal/core/id"
	"boigordo/internal/domain/allocation"
)

// Repository persists records and allocations.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	CreateAllocations(ctx context.Context, allocs []allocation.Allocation) error
	Get(ctx context.Context, recordID id.ID) (*Record, error)
	GetForUpdate(ctx context.Context, recordID id.ID) (*Record, error)
	AllocationsOf(ctx context.Context, recordIDs ...id.ID) (map[id.ID][]allocation.Allocation, error)
	List(ctx context.Context, f Filter) ([]Record, error)
	ListAllocated(ctx context.Context, f AllocatedFilter) ([]Allocated, error)
	MarkSettled(ctx context.Context, recordID id.ID, at time.Time, accountID *id.ID) error
	SoftDelete(ctx context.Context, recordIDs []id.ID, by string, at time.Time) error
}
