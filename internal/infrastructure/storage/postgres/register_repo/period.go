package register_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"boigordo/internal/core/types"
	"boigordo/internal/domain/period"
	"boigordo/internal/infrastructure/storage/postgres"
)

// The revision is bumped under the row lock, so it grows in commit order.
const markSQL = `
	INSERT INTO dirty_periods (reference_month, marked_at, revision)
	VALUES ($1, $2, 1)
	ON CONFLICT (reference_month) DO UPDATE
	SET marked_at = GREATEST(dirty_periods.marked_at, EXCLUDED.marked_at),
	    revision = dirty_periods.revision + 1`

// PeriodRepo implements period.Repository. A month keeps only its latest mark.
type PeriodRepo struct {
	txm   *postgres.TxManager
	batch *postgres.BatchInserter
}

var _ period.Repository = (*PeriodRepo)(nil)

func NewPeriodRepo(txm *postgres.TxManager) *PeriodRepo {
	return &PeriodRepo{txm: txm, batch: postgres.NewBatchInserter(txm)}
}

func (r *PeriodRepo) Mark(ctx context.Context, months []types.Month, at time.Time) error {
	queries := make([]postgres.BatchQuery, len(months))
	for i, m := range months {
		queries[i] = postgres.BatchQuery{SQL: markSQL, Args: []any{m.Time, at}}
	}
	if err := r.batch.ExecuteBatch(ctx, queries); err != nil {
		return fmt.Errorf("mark dirty periods: %w", err)
	}
	return nil
}

// Revision returns 0 for a month that was never marked.
func (r *PeriodRepo) Revision(ctx context.Context, month types.Month, share bool) (int64, error) {
	var rev int64
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, revisionSQL(share), month.Time).Scan(&rev)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("dirty period revision: %w", err)
	}
	return rev, nil
}

func revisionSQL(share bool) string {
	q := `SELECT revision FROM dirty_periods WHERE reference_month = $1`
	if share {
		q += ` FOR SHARE`
	}
	return q
}
