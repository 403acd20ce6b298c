// Package register_repo provides PostgreSQL repositories for derived state:
// realized cash movements, lot cost snapshots and dirty period marks.
package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"boigordo/internal/domain/cashflow"
	"boigordo/internal/infrastructure/storage/postgres"
)

// CashFlowRepo implements cashflow.Repository over cash_flow_entries.
type CashFlowRepo struct {
	postgres.Table[cashflow.Entry]
}

var _ cashflow.Repository = (*CashFlowRepo)(nil)

func NewCashFlowRepo(txm *postgres.TxManager) *CashFlowRepo {
	return &CashFlowRepo{Table: postgres.NewTable[cashflow.Entry](txm, "cash_flow_entries", "cash flow entry")}
}

// Insert writes e unless the record already has an entry.
func (r *CashFlowRepo) Insert(ctx context.Context, e *cashflow.Entry) (bool, error) {
	data := postgres.StructToMap(e)
	values := make(map[string]any, len(r.Columns()))
	for _, c := range r.Columns() {
		values[c] = data[c]
	}
	n, err := r.Exec(ctx, postgres.Builder().
		Insert(r.Name()).
		SetMap(values).
		Suffix("ON CONFLICT (record_id) DO NOTHING"))
	if err != nil {
		return false, fmt.Errorf("insert cash flow entry: %w", err)
	}
	return n > 0, nil
}

// List returns entries dated in [from, to).
func (r *CashFlowRepo) List(ctx context.Context, from, to time.Time) ([]cashflow.Entry, error) {
	return r.Many(ctx, r.SelectAll().
		Where(squirrel.GtOrEq{"entry_date": from}).
		Where(squirrel.Lt{"entry_date": to}).
		OrderBy("entry_date", "created_at"))
}
