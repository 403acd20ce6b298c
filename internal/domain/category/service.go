package category

import (
	"context"
	"fmt"
	"sync"
	"time"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
	"boigordo/internal/core/tx"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/period"
	"boigordo/pkg/logger"
)

// Service manages mapping versions and serves a cached resolution table.
type Service struct {
	repo   Repository
	tx     tx.Manager
	marker period.Marker
	now    func() time.Time

	mu    sync.RWMutex
	table *Table
}

// NewService creates a category mapping service.
func NewService(repo Repository, txm tx.Manager, marker period.Marker) *Service {
	return &Service{
		repo:   repo,
		tx:     txm,
		marker: marker,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// EnsureDefaults seeds the default mappings when the table is empty.
func (s *Service) EnsureDefaults(ctx context.Context) error {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count mappings: %w", err)
	}
	if n > 0 {
		return nil
	}
	if err := s.repo.Insert(ctx, Defaults()...); err != nil {
		return fmt.Errorf("seed mappings: %w", err)
	}
	s.Invalidate()
	logger.Info(ctx, "seeded default category mappings", "count", len(seeds))
	return nil
}

// Table returns the current resolution table, loading it on first use.
func (s *Service) Table(ctx context.Context) (*Table, error) {
	s.mu.RLock()
	t := s.table
	s.mu.RUnlock()
	if t != nil {
		return t, nil
	}

	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	t, err = NewTable(rows)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.table = t
	s.mu.Unlock()
	return t, nil
}

// List returns all versions.
func (s *Service) List(ctx context.Context) ([]Mapping, error) {
	return s.repo.List(ctx)
}

// AddVersion closes the open version(s) of the category and inserts m.
// Every month from the new effective date up to now is marked dirty.
func (s *Service) AddVersion(ctx context.Context, m Mapping) (*Mapping, error) {
	m.Category = m.Category.Normalize()
	m.ID = id.New()
	m.CreatedAt = s.now()
	m.EffectiveFrom = m.EffectiveFrom.UTC()
	if m.Match != "" {
		if _, err := CompileMatch(m.Match); err != nil {
			return nil, err
		}
	}
	if err := m.Validate(ctx); err != nil {
		return nil, err
	}
	if m.EffectiveTo != nil {
		return nil, apperror.NewValidation("new versions are open-ended; effectiveTo is set by the next version")
	}

	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		// Predicated rows coexist with the catch-all; only a catch-all supersedes.
		if m.Match == "" {
			if err := s.repo.CloseOpen(ctx, m.Category, m.EffectiveFrom); err != nil {
				return fmt.Errorf("close open versions: %w", err)
			}
		}
		if err := s.repo.Insert(ctx, m); err != nil {
			return fmt.Errorf("insert mapping: %w", err)
		}
		months := types.MonthsBetween(types.MonthOf(m.EffectiveFrom), types.MonthOf(s.now()))
		return s.marker.MarkDirty(ctx, "category_mapping", months...)
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate()
	logger.Info(ctx, "category mapping version added",
		"category", m.Category,
		"effective_from", m.EffectiveFrom,
	)
	return &m, nil
}

// Invalidate drops the cached table; the next call to Table reloads it.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.table = nil
	s.mu.Unlock()
}
