package cashflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boigordo/internal/core/entity"
	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/category"
	"boigordo/internal/domain/ledger"
)

type memRepo struct{ entries map[id.ID]Entry }

func (r *memRepo) Insert(_ context.Context, e *Entry) (bool, error) {
	if _, ok := r.entries[e.RecordID]; ok {
		return false, nil
	}
	r.entries[e.RecordID] = *e
	return true, nil
}

func (r *memRepo) List(_ context.Context, from, to time.Time) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if !e.Date.Before(from) && e.Date.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

type mappings struct{}

func (mappings) Table(context.Context) (*category.Table, error) { return category.MustDefaultTable(), nil }

func settled(kind ledger.Kind, code category.Code, amount string, at time.Time) *ledger.Record {
	return &ledger.Record{
		BaseEntity: entity.NewBaseEntity(), Kind: kind, Category: code, Description: string(code),
		Amount: types.MustMoney(amount), CompetenceDate: at, DueDate: at, Settled: true, SettledAt: &at,
	}
}

func TestService_RecordSettlementAndSummary(t *testing.T) {
	ctx := context.Background()
	repo := &memRepo{entries: make(map[id.ID]Entry)}
	svc := NewService(repo, mappings{})
	at := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

	sale := settled(ledger.KindRevenue, category.CattleSale, "50000", at)
	feed := settled(ledger.KindExpense, category.Feed, "8000", at)
	tractor := settled(ledger.KindExpense, category.Equipment, "12000", at)
	loan := settled(ledger.KindRevenue, category.Loan, "20000", at)

	for _, r := range []*ledger.Record{sale, feed, tractor, loan, sale} {
		require.NoError(t, svc.RecordSettlement(ctx, r))
	}
	assert.Len(t, repo.entries, 4, "one entry per record")
	assert.Equal(t, "-8000", repo.entries[feed.ID].Amount.String())

	sum, err := svc.Summary(ctx, types.MonthOf(at))
	require.NoError(t, err)
	require.Len(t, sum.Sections, 3)

	op := sum.Sections[0]
	assert.Equal(t, category.SectionOperating, op.Section)
	assert.Equal(t, "50000", op.Inflows.String())
	assert.Equal(t, "8000", op.Outflows.String())
	assert.Equal(t, "42000", op.Net.String())
	assert.Equal(t, "-12000", sum.Sections[1].Net.String())
	assert.Equal(t, "20000", sum.Sections[2].Net.String())
	assert.Equal(t, "50000", sum.Net.String())
}
