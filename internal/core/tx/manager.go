// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces; the implementation lives in
// infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes writers on a logical key for the lifetime of the current transaction.
type Locker interface {
	LockKey(ctx context.Context, namespace, key string) error
}

// LockingManager is a Manager that can also take transaction-scoped locks.
type LockingManager interface {
	Manager
	Locker
}
