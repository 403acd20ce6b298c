package pen

import (
	"context"
	"time"

	"boigordo/internal/core/id"
)

// Repository persists pens and placements.
type Repository interface {
	Create(ctx context.Context, p *Pen) error
	Get(ctx context.Context, penID id.ID) (*Pen, error)
	List(ctx context.Context) ([]Pen, error)
	Exists(ctx context.Context, penID id.ID) (bool, error)

	CreateLink(ctx context.Context, l *Link) error
	GetLink(ctx context.Context, linkID id.ID) (*Link, error)
	ReleaseLink(ctx context.Context, linkID id.ID, at time.Time) error
	// UpdateLink stores a placement's quantity, release date and status.
	UpdateLink(ctx context.Context, l *Link) error
	// LotLinks returns the lot's placements still in effect at or after at,
	// locked for update, oldest first.
	LotLinks(ctx context.Context, lotID id.ID, at time.Time) ([]Link, error)
	// Links returns placements overlapping [from, to). Zero times leave a bound open.
	Links(ctx context.Context, from, to time.Time) ([]Link, error)
}
