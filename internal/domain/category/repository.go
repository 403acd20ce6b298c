package category

import (
	"context"
	"time"
)

// Repository persists mapping versions.
type Repository interface {
	List(ctx context.Context) ([]Mapping, error)
	Count(ctx context.Context) (int, error)
	Insert(ctx context.Context, mappings ...Mapping) error
	// CloseOpen ends every open version of code at effectiveTo.
	CloseOpen(ctx context.Context, code Code, effectiveTo time.Time) error
}
