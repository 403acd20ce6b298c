package document_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boigordo/internal/core/id"
	"boigordo/internal/domain/ledger"
	"boigordo/internal/domain/sale"
	"boigordo/internal/infrastructure/storage/postgres"
)

func TestRecordListQuery(t *testing.T) {
	kind := ledger.KindExpense
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	q := recordListQuery(postgres.Builder().Select("id").From("monetary_records"), ledger.Filter{
		Kind:   &kind,
		From:   &from,
		Limit:  50,
		Offset: 10,
	})

	sql, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM monetary_records WHERE deletion_mark = $1 AND kind = $2 AND competence_date >= $3 "+
		"ORDER BY competence_date DESC, number DESC LIMIT 50 OFFSET 10", sql)
	assert.Equal(t, []any{false, ledger.KindExpense, from}, args)
}

func TestRecordListQuery_IncludeDeleted(t *testing.T) {
	sql, args, err := recordListQuery(postgres.Builder().Select("id").From("monetary_records"), ledger.Filter{IncludeDeleted: true}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM monetary_records ORDER BY competence_date DESC, number DESC", sql)
	assert.Empty(t, args)
}

func TestAllocatedQuery(t *testing.T) {
	lotID := id.New()
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	q, ok := allocatedQuery([]string{"id", "amount"}, ledger.AllocatedFilter{
		LotIDs:         []id.ID{lotID},
		RecognizedFrom: from,
		RecognizedTo:   to,
	})
	require.True(t, ok)

	sql, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM allocations a JOIN monetary_records r ON r.id = a.record_id LEFT JOIN sales s ON s.id = r.sale_id")
	assert.Contains(t, sql, "COALESCE(s.sale_date, r.competence_date) AS recognized_at")
	assert.Contains(t, sql, "COALESCE(s.sale_date, r.competence_date) >= $")
	assert.Contains(t, sql, "COALESCE(s.sale_date, r.competence_date) < $")
	assert.Contains(t, sql, "ORDER BY r.competence_date, r.id, a.id")
	assert.Contains(t, args, from)
	assert.Contains(t, args, to)
}

func TestAllocatedQuery_NoTargets(t *testing.T) {
	_, ok := allocatedQuery([]string{"id"}, ledger.AllocatedFilter{})
	assert.False(t, ok)

	q, ok := allocatedQuery([]string{"id"}, ledger.AllocatedFilter{All: true})
	require.True(t, ok)
	sql, _, err := q.ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "target_type")
}

func TestSaleListQuery(t *testing.T) {
	lotID := id.New()
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sql, args, err := saleListQuery(postgres.Builder().Select("id").From("sales"), sale.Filter{
		LotIDs: []id.ID{lotID},
		From:   from,
	}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM sales WHERE lot_id IN ($1) AND sale_date >= $2 ORDER BY sale_date, created_at", sql)
	assert.Equal(t, []any{lotID, from}, args)
}
