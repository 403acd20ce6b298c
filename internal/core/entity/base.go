// Package entity provides the base fields shared by persisted domain entities.
package entity

import (
	"context"
	"time"

	"boigordo/internal/core/id"
)

// Validatable is implemented by entities that support self-validation.
// Validation checks internal invariants (without database access).
type Validatable interface {
	// Validate checks entity invariants.
	// Returns nil if valid, AppError with details otherwise.
	Validate(ctx context.Context) error
}

// BaseEntity contains common fields for all entities.
type BaseEntity struct {
	// ID is the primary key (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// Version for optimistic locking (incremented on each update)
	Version int `db:"version" json:"version"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewBaseEntity creates a new BaseEntity with generated ID and timestamps.
func NewBaseEntity() BaseEntity {
	now := time.Now().UTC()
	return BaseEntity{
		ID:        id.New(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch updates the UpdatedAt timestamp and increments version.
func (b *BaseEntity) Touch() {
	b.UpdatedAt = time.Now().UTC()
	b.Version++
}

// SoftDelete carries the deletion mark and who set it.
// Rows are never physically removed so historical totals stay traceable.
type SoftDelete struct {
	DeletionMark bool       `db:"deletion_mark" json:"deletionMark"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	DeletedBy    string     `db:"deleted_by" json:"deletedBy,omitempty"`
}

// MarkDeleted sets the deletion mark.
func (s *SoftDelete) MarkDeleted(by string, at time.Time) {
	s.DeletionMark = true
	s.DeletedAt = &at
	s.DeletedBy = by
}
