package catalog_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"boigordo/internal/domain/category"
	"boigordo/internal/infrastructure/storage/postgres"
)

// ChannelCategoryChanged is the NOTIFY channel raised when mappings change.
const ChannelCategoryChanged = "category_mappings_changed"

// CategoryRepo implements category.Repository over category_mappings.
type CategoryRepo struct {
	postgres.Table[category.Mapping]
}

var _ category.Repository = (*CategoryRepo)(nil)

// NewCategoryRepo creates a category mapping repository.
func NewCategoryRepo(txm *postgres.TxManager) *CategoryRepo {
	return &CategoryRepo{Table: postgres.NewTable[category.Mapping](txm, "category_mappings", "category mapping")}
}

// List returns every version, newest effective date first within a category.
func (r *CategoryRepo) List(ctx context.Context) ([]category.Mapping, error) {
	return r.Many(ctx, r.SelectAll().OrderBy("category", "effective_from DESC", "created_at DESC"))
}

func (r *CategoryRepo) Count(ctx context.Context) (int, error) {
	sql, args, err := postgres.Builder().Select("COUNT(*)").From(r.Name()).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := r.Querier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count mappings: %w", err)
	}
	return n, nil
}

// Insert writes mappings in one multi-row statement.
func (r *CategoryRepo) Insert(ctx context.Context, mappings ...category.Mapping) error {
	if len(mappings) == 0 {
		return nil
	}
	q := postgres.Builder().Insert(r.Name()).Columns(r.Columns()...)
	for i := range mappings {
		q = q.Values(postgres.RowValues(&mappings[i], r.Columns())...)
	}
	if _, err := r.Exec(ctx, q); err != nil {
		return fmt.Errorf("insert mappings: %w", err)
	}
	// Delivered on commit; other processes drop their cached table.
	if _, err := r.Querier(ctx).Exec(ctx, `SELECT pg_notify($1, $2)`, ChannelCategoryChanged, string(mappings[0].Category)); err != nil {
		return fmt.Errorf("notify mapping change: %w", err)
	}
	return nil
}

// CloseOpen ends the open versions of code at effectiveTo.
func (r *CategoryRepo) CloseOpen(ctx context.Context, code category.Code, effectiveTo time.Time) error {
	_, err := r.Exec(ctx, postgres.Builder().
		Update(r.Name()).
		Set("effective_to", effectiveTo).
		Where(squirrel.Eq{"category": code, "effective_to": nil}).
		Where(squirrel.Lt{"effective_from": effectiveTo}))
	if err != nil {
		return fmt.Errorf("close open mappings: %w", err)
	}
	return nil
}
