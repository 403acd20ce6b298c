// Package report_repo provides PostgreSQL storage for generated statements.
package report_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"boigordo/internal/core/types"
	"boigordo/internal/domain/scope"
	"boigordo/internal/domain/statement"
	"boigordo/internal/infrastructure/storage/postgres"
)

// StatementRepo implements statement.Repository over dre_statements. The
// table is unique on (reference_month, scope_type, scope_id) with NULLS NOT
// DISTINCT, so the GLOBAL row is unique too.
type StatementRepo struct {
	postgres.Table[statement.Statement]
}

var _ statement.Repository = (*StatementRepo)(nil)

func NewStatementRepo(txm *postgres.TxManager) *StatementRepo {
	return &StatementRepo{Table: postgres.NewTable[statement.Statement](txm, "dre_statements", "statement")}
}

// Upsert replaces the row of (month, scope) and bumps its version. The stored
// row keeps its original id.
func (r *StatementRepo) Upsert(ctx context.Context, st *statement.Statement) (*statement.Statement, error) {
	sql, args, err := r.upsertQuery(st).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build statement upsert: %w", err)
	}
	out := new(statement.Statement)
	if err := pgxscan.Get(ctx, r.Querier(ctx), out, sql, args...); err != nil {
		return nil, fmt.Errorf("upsert statement: %w", err)
	}
	return out, nil
}

var conflictKey = []string{"reference_month", "scope_type", "scope_id"}

func (r *StatementRepo) upsertQuery(st *statement.Statement) squirrel.InsertBuilder {
	values := postgres.RowValues(st, r.Columns())
	for i, c := range r.Columns() {
		switch c {
		case "version":
			values[i] = 1
		case "reference_month":
			values[i] = types.MonthOf(st.ReferenceMonth).Time
		}
	}

	var set []string
	for _, c := range r.Columns() {
		switch c {
		case "id", "reference_month", "scope_type", "scope_id", "version":
			continue
		}
		set = append(set, c+" = EXCLUDED."+c)
	}
	set = append(set, "version = "+r.Name()+".version + 1")

	return postgres.Builder().
		Insert(r.Name()).
		Columns(r.Columns()...).
		Values(values...).
		Suffix(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s RETURNING %s",
			strings.Join(conflictKey, ", "), strings.Join(set, ", "), strings.Join(r.Columns(), ", ")))
}

// Find returns nil when no statement was stored for (month, scope).
func (r *StatementRepo) Find(ctx context.Context, month types.Month, sc scope.Scope) (*statement.Statement, error) {
	rows, err := r.Many(ctx, r.SelectAll().
		Where(squirrel.Eq{"reference_month": month.Time}).
		Where(scopeWhere(sc)).
		Limit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// List returns the stored statements of sc for months from..to inclusive.
func (r *StatementRepo) List(ctx context.Context, from, to types.Month, sc scope.Scope) ([]statement.Statement, error) {
	return r.Many(ctx, r.SelectAll().
		Where(squirrel.GtOrEq{"reference_month": from.Time}).
		Where(squirrel.LtOrEq{"reference_month": to.Time}).
		Where(scopeWhere(sc)).
		OrderBy("reference_month"))
}

func scopeWhere(sc scope.Scope) squirrel.Eq {
	if sc.ID == nil {
		return squirrel.Eq{"scope_type": sc.Type, "scope_id": nil}
	}
	return squirrel.Eq{"scope_type": sc.Type, "scope_id": *sc.ID}
}
