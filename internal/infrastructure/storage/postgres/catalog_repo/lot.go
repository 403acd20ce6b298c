// Package catalog_repo provides PostgreSQL repositories for the reference
// entities: lots, pens and their placements, cost centers and category mappings.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
	"boigordo/internal/domain/lot"
	"boigordo/internal/infrastructure/storage/postgres"
)

const maxListLimit = 1000

// LotRepo implements lot.Repository.
type LotRepo struct {
	postgres.Table[lot.Lot]
}

var _ lot.Repository = (*LotRepo)(nil)

// NewLotRepo creates a lot repository.
func NewLotRepo(txm *postgres.TxManager) *LotRepo {
	return &LotRepo{Table: postgres.NewTable[lot.Lot](txm, "lots", "lot")}
}

// Create inserts a lot.
func (r *LotRepo) Create(ctx context.Context, l *lot.Lot) error {
	return r.Insert(ctx, l)
}

// Get loads a lot.
func (r *LotRepo) Get(ctx context.Context, lotID id.ID) (*lot.Lot, error) {
	return r.Table.Get(ctx, lotID, false)
}

// GetForUpdate loads and row-locks a lot.
func (r *LotRepo) GetForUpdate(ctx context.Context, lotID id.ID) (*lot.Lot, error) {
	return r.Table.Get(ctx, lotID, true)
}

// List returns lots ordered by purchase date, newest first.
func (r *LotRepo) List(ctx context.Context, f lot.Filter) ([]lot.Lot, error) {
	return r.Many(ctx, lotListQuery(r.SelectAll(), f))
}

func lotListQuery(q squirrel.SelectBuilder, f lot.Filter) squirrel.SelectBuilder {
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": *f.Status})
	}
	if f.OnlyOpen {
		q = q.Where(squirrel.NotEq{"status": lot.StatusClosed})
	}
	limit := f.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	q = q.OrderBy("purchase_date DESC", "code").Limit(uint64(limit))
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

// Update writes the mutable lifecycle fields, expecting the row at l.Version-1.
func (r *LotRepo) Update(ctx context.Context, l *lot.Lot) error {
	n, err := r.Exec(ctx, postgres.Builder().
		Update(r.Name()).
		Set("status", l.Status).
		Set("current_quantity", l.CurrentQuantity).
		Set("version", l.Version).
		Set("updated_at", l.UpdatedAt).
		Where(squirrel.Eq{"id": l.ID, "version": l.Version - 1}))
	if err != nil {
		return fmt.Errorf("update lot: %w", err)
	}
	if n == 0 {
		return apperror.NewConflict("lot was modified concurrently").WithDetail("lot_id", l.ID.String())
	}
	return nil
}
