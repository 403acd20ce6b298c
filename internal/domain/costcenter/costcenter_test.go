package costcenter

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/ledger"
)

type memRepo struct{ centers []CostCenter }

func (r *memRepo) Create(_ context.Context, c *CostCenter) error {
	r.centers = append(r.centers, *c)
	return nil
}

func (r *memRepo) Get(_ context.Context, centerID id.ID) (*CostCenter, error) {
	for _, c := range r.centers {
		if c.ID == centerID {
			return &c, nil
		}
	}
	return nil, apperror.NewNotFound("cost center", centerID)
}

func (r *memRepo) List(context.Context) ([]CostCenter, error) { return r.centers, nil }

func (r *memRepo) Descendants(_ context.Context, centerID id.ID) ([]id.ID, error) {
	out := []id.ID{centerID}
	for i := 0; i < len(out); i++ {
		for _, c := range r.centers {
			if c.ParentID != nil && *c.ParentID == out[i] {
				out = append(out, c.ID)
			}
		}
	}
	return out, nil
}

type records struct{ all []ledger.Record }

func (r records) ListUnpaged(_ context.Context, f ledger.Filter) ([]ledger.Record, error) {
	var out []ledger.Record
	for _, rec := range r.all {
		if rec.CostCenterID != nil && slices.Contains(f.CostCenterIDs, *rec.CostCenterID) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func record(kind ledger.Kind, amount string, center id.ID, at time.Time) ledger.Record {
	c := center
	return ledger.Record{Kind: kind, Amount: types.MustMoney(amount), CostCenterID: &c, CompetenceDate: at}
}

func TestService_TreeAndSummary(t *testing.T) {
	ctx := context.Background()
	repo := &memRepo{}
	jul := time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC)

	svc := NewService(repo, nil)
	root, err := svc.Create(ctx, CreateInput{Code: "10", Name: "Engorda", Type: TypeFattening})
	require.NoError(t, err)
	child, err := svc.Create(ctx, CreateInput{Code: "10.2", Name: "Confinamento", Type: TypeFattening, ParentID: &root.ID})
	require.NoError(t, err)
	sibling, err := svc.Create(ctx, CreateInput{Code: "10.1", Name: "Pasto", Type: TypeFattening, ParentID: &root.ID})
	require.NoError(t, err)
	admin, err := svc.Create(ctx, CreateInput{Code: "20", Name: "Administração", Type: TypeAdministrative})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{Code: "x", Name: "x", Type: TypeRevenue, ParentID: ptr(id.New())})
	assert.True(t, apperror.IsNotFound(err))

	tree, err := svc.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 2)
	require.Len(t, tree[0].Children, 2)
	assert.Equal(t, sibling.ID, tree[0].Children[0].ID, "children ordered by code")

	svc.records = records{all: []ledger.Record{
		record(ledger.KindExpense, "100", root.ID, jul),
		record(ledger.KindExpense, "250", child.ID, jul),
		record(ledger.KindRevenue, "1000", sibling.ID, jul),
		record(ledger.KindExpense, "999", admin.ID, jul),
		record(ledger.KindExpense, "50", child.ID, jul.AddDate(0, 1, 0)),
	}}

	sum, err := svc.Summary(ctx, root.ID, types.MonthOf(jul))
	require.NoError(t, err)
	assert.Equal(t, "350", sum.Expenses.String())
	assert.Equal(t, "1000", sum.Revenues.String())
	assert.Equal(t, "650", sum.Net.String())
	assert.Equal(t, 3, sum.Records)
	assert.Equal(t, 3, sum.Centers)
}

func ptr(v id.ID) *id.ID { return &v }
