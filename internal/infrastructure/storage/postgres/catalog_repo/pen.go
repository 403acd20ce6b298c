package catalog_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
	"boigordo/internal/domain/pen"
	"boigordo/internal/infrastructure/storage/postgres"
)

// PenRepo implements pen.Repository over pens and lot_pen_links.
type PenRepo struct {
	pens  postgres.Table[pen.Pen]
	links postgres.Table[pen.Link]
}

var _ pen.Repository = (*PenRepo)(nil)

// NewPenRepo creates a pen repository.
func NewPenRepo(txm *postgres.TxManager) *PenRepo {
	return &PenRepo{
		pens:  postgres.NewTable[pen.Pen](txm, "pens", "pen"),
		links: postgres.NewTable[pen.Link](txm, "lot_pen_links", "placement"),
	}
}

func (r *PenRepo) Create(ctx context.Context, p *pen.Pen) error {
	return r.pens.Insert(ctx, p)
}

func (r *PenRepo) Get(ctx context.Context, penID id.ID) (*pen.Pen, error) {
	return r.pens.Get(ctx, penID, false)
}

func (r *PenRepo) List(ctx context.Context) ([]pen.Pen, error) {
	return r.pens.Many(ctx, r.pens.SelectAll().OrderBy("code"))
}

func (r *PenRepo) Exists(ctx context.Context, penID id.ID) (bool, error) {
	return r.pens.Exists(ctx, penID)
}

func (r *PenRepo) CreateLink(ctx context.Context, l *pen.Link) error {
	return r.links.Insert(ctx, l)
}

func (r *PenRepo) GetLink(ctx context.Context, linkID id.ID) (*pen.Link, error) {
	return r.links.Get(ctx, linkID, false)
}

// ReleaseLink closes an active placement at at.
func (r *PenRepo) ReleaseLink(ctx context.Context, linkID id.ID, at time.Time) error {
	n, err := r.links.Exec(ctx, postgres.Builder().
		Update(r.links.Name()).
		Set("released_at", at).
		Set("status", pen.LinkReleased).
		Where(squirrel.Eq{"id": linkID, "status": pen.LinkActive}))
	if err != nil {
		return fmt.Errorf("release placement: %w", err)
	}
	if n == 0 {
		return apperror.NewNotFound("active placement", linkID.String())
	}
	return nil
}

// UpdateLink rewrites quantity, released_at and status of a placement.
func (r *PenRepo) UpdateLink(ctx context.Context, l *pen.Link) error {
	n, err := r.links.Exec(ctx, postgres.Builder().
		Update(r.links.Name()).
		Set("quantity", l.Quantity).
		Set("released_at", l.ReleasedAt).
		Set("status", l.Status).
		Where(squirrel.Eq{"id": l.ID}))
	if err != nil {
		return fmt.Errorf("update placement: %w", err)
	}
	if n == 0 {
		return apperror.NewNotFound("placement", l.ID.String())
	}
	return nil
}

// LotLinks returns the lot's placements not released before at, locked.
func (r *PenRepo) LotLinks(ctx context.Context, lotID id.ID, at time.Time) ([]pen.Link, error) {
	return r.links.Many(ctx, lotLinksQuery(r.links.SelectAll(), lotID, at))
}

func lotLinksQuery(q squirrel.SelectBuilder, lotID id.ID, at time.Time) squirrel.SelectBuilder {
	return q.Where(squirrel.Eq{"lot_id": lotID}).
		Where(squirrel.Or{
			squirrel.Eq{"released_at": nil},
			squirrel.GtOrEq{"released_at": at},
		}).
		OrderBy("allocated_at", "id").
		Suffix("FOR UPDATE")
}

// Links returns placements overlapping [from, to).
func (r *PenRepo) Links(ctx context.Context, from, to time.Time) ([]pen.Link, error) {
	return r.links.Many(ctx, linksQuery(r.links.SelectAll(), from, to))
}

func linksQuery(q squirrel.SelectBuilder, from, to time.Time) squirrel.SelectBuilder {
	if !to.IsZero() {
		q = q.Where(squirrel.Lt{"allocated_at": to})
	}
	if !from.IsZero() {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"released_at": nil},
			squirrel.Gt{"released_at": from},
		})
	}
	return q.OrderBy("allocated_at", "id")
}
