package tx

import (
	"context"
	"sync"
)

// NopManager runs fn inline without a database. It records lock keys so
// tests can assert serialization points.
type NopManager struct {
	mu    sync.Mutex
	Locks []string
}

// RunInTransaction calls fn with ctx unchanged.
func (m *NopManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// LockKey records namespace/key.
func (m *NopManager) LockKey(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Locks = append(m.Locks, namespace+"/"+key)
	return nil
}
