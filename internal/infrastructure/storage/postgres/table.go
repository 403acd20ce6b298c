package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
)

// Builder returns a squirrel builder with PostgreSQL placeholders.
func Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Table maps a struct with "db" tags onto one table. Repositories embed it and
// add their own queries on top.
type Table[T any] struct {
	txm     *TxManager
	name    string
	entity  string
	columns []string
}

// NewTable creates a table mapping. entity names the row in NotFound errors.
func NewTable[T any](txm *TxManager, name, entity string) Table[T] {
	return Table[T]{txm: txm, name: name, entity: entity, columns: ExtractDBColumns[T]()}
}

// Name returns the table name.
func (t Table[T]) Name() string { return t.name }

// Columns returns the mapped columns.
func (t Table[T]) Columns() []string { return t.columns }

// Querier returns the transaction in ctx or the pool.
func (t Table[T]) Querier(ctx context.Context) Querier { return t.txm.GetQuerier(ctx) }

// SelectAll starts a SELECT of every mapped column.
func (t Table[T]) SelectAll() squirrel.SelectBuilder {
	return Builder().Select(t.columns...).From(t.name)
}

// Insert writes v using its "db" tags.
func (t Table[T]) Insert(ctx context.Context, v *T) error {
	data := StructToMap(v)
	values := make(map[string]any, len(t.columns))
	for _, c := range t.columns {
		values[c] = data[c]
	}
	sql, args, err := Builder().Insert(t.name).SetMap(values).ToSql()
	if err != nil {
		return fmt.Errorf("build insert %s: %w", t.name, err)
	}
	if _, err := t.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return translate(t.entity, fmt.Errorf("insert %s: %w", t.name, err))
	}
	return nil
}

// Get loads the row with id, optionally locking it for the surrounding transaction.
func (t Table[T]) Get(ctx context.Context, rowID id.ID, forUpdate bool) (*T, error) {
	q := t.SelectAll().Where(squirrel.Eq{"id": rowID}).Limit(1)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	return t.One(ctx, q, rowID.String())
}

// One scans the single row of q. key names the row in NotFound errors.
func (t Table[T]) One(ctx context.Context, q squirrel.SelectBuilder, key string) (*T, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	out := new(T)
	if err := pgxscan.Get(ctx, t.Querier(ctx), out, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(t.entity, key)
		}
		return nil, fmt.Errorf("get %s: %w", t.name, err)
	}
	return out, nil
}

// Many scans every row of q.
func (t Table[T]) Many(ctx context.Context, q squirrel.SelectBuilder) ([]T, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []T
	if err := pgxscan.Select(ctx, t.Querier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", t.name, err)
	}
	return out, nil
}

// Exists reports whether a row with id exists.
func (t Table[T]) Exists(ctx context.Context, rowID id.ID) (bool, error) {
	sql, args, err := Builder().Select("1").From(t.name).Where(squirrel.Eq{"id": rowID}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}
	var one int
	err = t.Querier(ctx).QueryRow(ctx, sql, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", t.name, err)
	}
	return true, nil
}

// Exec runs a built statement and returns the affected row count.
func (t Table[T]) Exec(ctx context.Context, b squirrel.Sqlizer) (int64, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	tag, err := t.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, translate(t.entity, fmt.Errorf("exec on %s: %w", t.name, err))
	}
	return tag.RowsAffected(), nil
}

// translate maps constraint violations on entity rows to application errors.
func translate(entity string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return apperror.NewDuplicate(entity, pgErr.ConstraintName).WithCause(err)
	case "23503":
		return apperror.NewValidation("referenced entity does not exist").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case "23514":
		return apperror.NewValidation("check constraint violated").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	}
	return err
}
