// Package period tracks which reference months had their statement inputs changed.
// Every mark bumps the month's revision in the same transaction as the change.
// A statement remembers the revision it was built from and is stale once the
// month moves past it.
package period

import (
	"context"
	"fmt"
	"sort"
	"time"

	"boigordo/internal/core/types"
	"boigordo/pkg/logger"
)

// EventChanged is the outbox event type published for every dirty mark.
const EventChanged = "period.changed"

// Changed is the outbox payload.
type Changed struct {
	Months []string `json:"months"`
	Reason string   `json:"reason"`
}

// Marker is used by write paths to flag months whose statements must be regenerated.
type Marker interface {
	MarkDirty(ctx context.Context, reason string, months ...types.Month) error
}

// Repository persists dirty marks.
type Repository interface {
	// Mark bumps the revision of each month.
	Mark(ctx context.Context, months []types.Month, at time.Time) error
	// Revision returns the month's committed revision, 0 when never marked.
	// With share set the month row stays share-locked until the transaction
	// ends, so a writer marking it waits for the reader to finish.
	Revision(ctx context.Context, month types.Month, share bool) (int64, error)
}

// EventPublisher publishes an event within the caller's transaction.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// Service implements Marker over a repository and an outbox publisher.
type Service struct {
	repo   Repository
	events EventPublisher
	now    func() time.Time
}

var _ Marker = (*Service)(nil)

// NewService creates a dirty period service. events may be nil.
func NewService(repo Repository, events EventPublisher) *Service {
	return &Service{repo: repo, events: events, now: func() time.Time { return time.Now().UTC() }}
}

// MarkDirty records the months as changed now and emits one event.
func (s *Service) MarkDirty(ctx context.Context, reason string, months ...types.Month) error {
	months = Unique(months)
	if len(months) == 0 {
		return nil
	}

	if err := s.repo.Mark(ctx, months, s.now()); err != nil {
		return fmt.Errorf("mark dirty periods: %w", err)
	}

	if s.events != nil {
		payload := Changed{Reason: reason}
		for _, m := range months {
			payload.Months = append(payload.Months, m.String())
		}
		if err := s.events.Publish(ctx, EventChanged, payload); err != nil {
			return fmt.Errorf("publish %s: %w", EventChanged, err)
		}
	}

	logger.Debug(ctx, "periods marked dirty", "reason", reason, "months", len(months))
	return nil
}

// Pin returns the month's revision and holds it until the caller's transaction
// ends. Inputs read after Pin include every change up to that revision.
func (s *Service) Pin(ctx context.Context, month types.Month) (int64, error) {
	rev, err := s.repo.Revision(ctx, month, true)
	if err != nil {
		return 0, fmt.Errorf("pin period revision: %w", err)
	}
	return rev, nil
}

// IsStale reports whether month changed after the revision a statement was built from.
func (s *Service) IsStale(ctx context.Context, month types.Month, revision int64) (bool, error) {
	rev, err := s.repo.Revision(ctx, month, false)
	if err != nil {
		return false, fmt.Errorf("get period revision: %w", err)
	}
	return rev > revision, nil
}

// Unique removes duplicates and sorts ascending.
func Unique(months []types.Month) []types.Month {
	seen := make(map[string]types.Month, len(months))
	for _, m := range months {
		if m.IsZero() {
			continue
		}
		seen[m.String()] = m
	}
	out := make([]types.Month, 0, len(seen))
	for _, m := range seen {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j].Time) })
	return out
}
