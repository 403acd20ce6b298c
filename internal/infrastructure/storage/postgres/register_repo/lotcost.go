package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/lotcost"
	"boigordo/internal/infrastructure/storage/postgres"
)

// activityMonthsSQL lists the distinct months of a lot's sales and deaths.
const activityMonthsSQL = `
	SELECT DISTINCT date_trunc('month', d::timestamp) AS month
	FROM (
		SELECT sale_date AS d FROM sales WHERE lot_id = $1
		UNION ALL
		SELECT death_date FROM mortality_records WHERE lot_id = $1
	) activity
	ORDER BY month`

// LotCostRepo implements lotcost.Repository. Snapshots are append-only; the
// lot row points at the current one.
type LotCostRepo struct {
	snapshots postgres.Table[lotcost.Breakdown]
}

var _ lotcost.Repository = (*LotCostRepo)(nil)

func NewLotCostRepo(txm *postgres.TxManager) *LotCostRepo {
	return &LotCostRepo{snapshots: postgres.NewTable[lotcost.Breakdown](txm, "lot_cost_snapshots", "lot cost snapshot")}
}

func (r *LotCostRepo) InsertSnapshot(ctx context.Context, b *lotcost.Breakdown) error {
	return r.snapshots.Insert(ctx, b)
}

func (r *LotCostRepo) Snapshot(ctx context.Context, snapshotID id.ID) (*lotcost.Breakdown, error) {
	return r.snapshots.Get(ctx, snapshotID, false)
}

// SwapLotCost moves the lot's derived cost to b when cost_version still matches.
func (r *LotCostRepo) SwapLotCost(ctx context.Context, lotID id.ID, expectedVersion int, b *lotcost.Breakdown) (bool, error) {
	n, err := r.snapshots.Exec(ctx, swapQuery(lotID, expectedVersion, b))
	if err != nil {
		return false, fmt.Errorf("swap lot cost: %w", err)
	}
	return n == 1, nil
}

func swapQuery(lotID id.ID, expectedVersion int, b *lotcost.Breakdown) squirrel.UpdateBuilder {
	return postgres.Builder().
		Update("lots").
		Set("total_cost", b.Total).
		Set("cost_per_head", b.CostPerHead).
		Set("cost_snapshot_id", b.ID).
		Set("cost_computed_at", b.ComputedAt).
		Set("cost_version", squirrel.Expr("cost_version + 1")).
		Where(squirrel.Eq{"id": lotID, "cost_version": expectedVersion})
}

func (r *LotCostRepo) ActivityMonths(ctx context.Context, lotID id.ID) ([]types.Month, error) {
	var starts []time.Time
	if err := pgxscan.Select(ctx, r.snapshots.Querier(ctx), &starts, activityMonthsSQL, lotID); err != nil {
		return nil, fmt.Errorf("lot activity months: %w", err)
	}
	months := make([]types.Month, len(starts))
	for i, t := range starts {
		months[i] = types.MonthOf(t)
	}
	return months, nil
}
