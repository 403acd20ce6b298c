package period

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boigordo/internal/core/types"
)

type memRepo struct {
	marks     map[string]time.Time
	revisions map[string]int64
	shared    []string
	err       error
}

func (r *memRepo) Mark(_ context.Context, months []types.Month, at time.Time) error {
	if r.err != nil {
		return r.err
	}
	if r.marks == nil {
		r.marks = map[string]time.Time{}
		r.revisions = map[string]int64{}
	}
	for _, m := range months {
		r.marks[m.String()] = at
		r.revisions[m.String()]++
	}
	return nil
}

func (r *memRepo) Revision(_ context.Context, month types.Month, share bool) (int64, error) {
	if share {
		r.shared = append(r.shared, month.String())
	}
	return r.revisions[month.String()], nil
}

type published struct {
	eventType string
	payload   any
}

type memEvents struct{ events []published }

func (e *memEvents) Publish(_ context.Context, eventType string, payload any) error {
	e.events = append(e.events, published{eventType, payload})
	return nil
}

func month(t *testing.T, s string) types.Month {
	t.Helper()
	m, err := types.ParseMonth(s)
	require.NoError(t, err)
	return m
}

func TestMarkDirty(t *testing.T) {
	repo, events := &memRepo{}, &memEvents{}
	s := NewService(repo, events)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	err := s.MarkDirty(context.Background(), "sale", month(t, "2024-02"), month(t, "2024-01"), month(t, "2024-02"))
	require.NoError(t, err)

	assert.Len(t, repo.marks, 2)
	assert.Equal(t, now, repo.marks["2024-01"])
	require.Len(t, events.events, 1)
	assert.Equal(t, EventChanged, events.events[0].eventType)
	assert.Equal(t, Changed{Months: []string{"2024-01", "2024-02"}, Reason: "sale"}, events.events[0].payload)
}

func TestMarkDirty_NoMonths(t *testing.T) {
	repo, events := &memRepo{}, &memEvents{}
	s := NewService(repo, events)

	require.NoError(t, s.MarkDirty(context.Background(), "noop", types.Month{}))
	assert.Empty(t, repo.marks)
	assert.Empty(t, events.events)
}

func TestMarkDirty_RepositoryError(t *testing.T) {
	events := &memEvents{}
	s := NewService(&memRepo{err: errors.New("db down")}, events)

	err := s.MarkDirty(context.Background(), "record", month(t, "2024-01"))
	assert.ErrorContains(t, err, "db down")
	assert.Empty(t, events.events)
}

func TestIsStale(t *testing.T) {
	repo := &memRepo{}
	s := NewService(repo, nil)
	ctx := context.Background()
	march := month(t, "2024-03")

	pinned, err := s.Pin(ctx, march)
	require.NoError(t, err)
	assert.Zero(t, pinned)
	assert.Equal(t, []string{"2024-03"}, repo.shared)

	require.NoError(t, s.MarkDirty(ctx, "record", march))
	stale, err := s.IsStale(ctx, march, pinned)
	require.NoError(t, err)
	assert.True(t, stale)

	pinned, err = s.Pin(ctx, march)
	require.NoError(t, err)
	stale, err = s.IsStale(ctx, march, pinned)
	require.NoError(t, err)
	assert.False(t, stale)

	// A second mark in the same instant still moves the month forward.
	require.NoError(t, s.MarkDirty(ctx, "record", march))
	stale, err = s.IsStale(ctx, march, pinned)
	require.NoError(t, err)
	assert.True(t, stale)

	stale, err = s.IsStale(ctx, month(t, "2024-04"), 0)
	require.NoError(t, err)
	assert.False(t, stale)
}
