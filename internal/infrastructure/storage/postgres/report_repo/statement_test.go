package report_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boigordo/internal/core/id"
	"boigordo/internal/domain/scope"
	"boigordo/internal/domain/statement"
)

func TestUpsertQuery(t *testing.T) {
	r := NewStatementRepo(nil)
	st := &statement.Statement{
		ID:             id.New(),
		ReferenceMonth: time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC),
		ScopeType:      scope.TypeGlobal,
		Version:        7,
	}

	sql, args, err := r.upsertQuery(st).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO dre_statements (")
	assert.Contains(t, sql, "ON CONFLICT (reference_month, scope_type, scope_id) DO UPDATE SET ")
	assert.Contains(t, sql, "net_profit = EXCLUDED.net_profit")
	assert.Contains(t, sql, "version = dre_statements.version + 1")
	assert.NotContains(t, sql, "id = EXCLUDED.id")
	assert.Contains(t, sql, "RETURNING id, ")

	for i, c := range r.Columns() {
		switch c {
		case "version":
			assert.Equal(t, 1, args[i])
		case "reference_month":
			assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), args[i])
		}
	}
}

func TestScopeWhere(t *testing.T) {
	sql, args, err := scopeWhere(scope.Global()).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "scope_id IS NULL AND scope_type = ?", sql)
	assert.Equal(t, []any{scope.TypeGlobal}, args)

	penID := id.New()
	sql, args, err = scopeWhere(scope.Pen(penID)).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "scope_id = ? AND scope_type = ?", sql)
	assert.Equal(t, []any{penID, scope.TypePen}, args)
}
