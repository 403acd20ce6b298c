package catalog_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boigordo/internal/core/id"
	"boigordo/internal/domain/lot"
	"boigordo/internal/infrastructure/storage/postgres"
)

func TestLotListQuery(t *testing.T) {
	status := lot.StatusConfined
	q := lotListQuery(postgres.Builder().Select("id").From("lots"), lot.Filter{Status: &status, OnlyOpen: true, Offset: 20})

	sql, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM lots WHERE status = $1 AND status <> $2 ORDER BY purchase_date DESC, code LIMIT 1000 OFFSET 20", sql)
	assert.Equal(t, []any{lot.StatusConfined, lot.StatusClosed}, args)
}

func TestLinksQuery_OpenBounds(t *testing.T) {
	base := postgres.Builder().Select("id").From("lot_pen_links")

	sql, args, err := linksQuery(base, time.Time{}, time.Time{}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM lot_pen_links ORDER BY allocated_at, id", sql)
	assert.Empty(t, args)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	sql, args, err = linksQuery(base, from, to).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM lot_pen_links WHERE allocated_at < $1 AND (released_at IS NULL OR released_at > $2) ORDER BY allocated_at, id", sql)
	assert.Equal(t, []any{to, from}, args)
}

func TestLotLinksQuery(t *testing.T) {
	lotID := id.New()
	at := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	sql, args, err := lotLinksQuery(postgres.Builder().Select("id").From("lot_pen_links"), lotID, at).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM lot_pen_links WHERE lot_id = $1 AND (released_at IS NULL OR released_at >= $2) ORDER BY allocated_at, id FOR UPDATE", sql)
	assert.Equal(t, []any{lotID, at}, args)
}
