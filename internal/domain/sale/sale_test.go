package sale

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
	"boigordo/internal/core/tx"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/ledger"
	"boigordo/internal/domain/lot"
	"boigordo/internal/domain/pen"
)

type memRepo struct{ sales map[id.ID]Sale }

func (r *memRepo) Create(_ context.Context, s *Sale) error {
	r.sales[s.ID] = *s
	return nil
}

func (r *memRepo) Get(_ context.Context, saleID id.ID) (*Sale, error) {
	s, ok := r.sales[saleID]
	if !ok {
		return nil, apperror.NewNotFound("sale", saleID)
	}
	return &s, nil
}

func (r *memRepo) List(context.Context, Filter) ([]Sale, error) {
	out := make([]Sale, 0, len(r.sales))
	for _, s := range r.sales {
		out = append(out, s)
	}
	return out, nil
}

type stock struct{ l *lot.Lot }

func (s *stock) AdjustQuantity(_ context.Context, lotID id.ID, delta int, _ bool) (*lot.Lot, int, error) {
	if -delta > s.l.CurrentQuantity {
		return nil, 0, apperror.NewInsufficientQuantity(lotID.String(), -delta, s.l.CurrentQuantity)
	}
	return s.l, s.l.AdjustQuantity(delta), nil
}

func (s *stock) MarkSold(_ context.Context, l *lot.Lot) error {
	if l.CurrentQuantity == 0 {
		l.Status = lot.StatusSold
	}
	return nil
}

type revenue struct{ inputs []ledger.CreateInput }

func (r *revenue) Create(_ context.Context, in ledger.CreateInput) (*ledger.Record, error) {
	r.inputs = append(r.inputs, in)
	return &ledger.Record{Kind: in.Kind, Category: in.Category, Amount: in.Amount, SaleID: in.SaleID}, nil
}

type marker struct{ months []string }

func (m *marker) MarkDirty(_ context.Context, _ string, months ...types.Month) error {
	for _, mo := range months {
		m.months = append(m.months, mo.String())
	}
	return nil
}

type placements struct {
	links     []pen.Link
	withdrawn []pen.Move
	refreshed []id.ID
}

func (p *placements) Occupancy(context.Context, time.Time, time.Time) (*pen.Occupancy, error) {
	return pen.NewOccupancy(p.links), nil
}

func (p *placements) Withdraw(_ context.Context, _ id.ID, moves []pen.Move, _ time.Time) error {
	p.withdrawn = append(p.withdrawn, moves...)
	return nil
}

func (p *placements) Refresh(_ context.Context, penIDs []id.ID, _ time.Time) {
	p.refreshed = append(p.refreshed, penIDs...)
}

func TestService_CreateSellsOutLot(t *testing.T) {
	ctx := context.Background()
	l := &lot.Lot{Code: "LOT-001", HeadCount: 10, CurrentQuantity: 10, Status: lot.StatusConfined}
	l.ID = id.New()
	repo := &memRepo{sales: make(map[id.ID]Sale)}
	rev := &revenue{}
	mk := &marker{}
	svc := NewService(repo, &tx.NopManager{}, &stock{l: l}, rev, mk, &placements{})
	saleDate := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)

	res, err := svc.Create(ctx, CreateInput{
		LotID: l.ID, SaleDate: saleDate, Quantity: 6,
		TotalWeight: types.MustMoney("3300"), PricePerKg: types.MustMoney("10.5"),
		RecordRevenue: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "34650", res.Sale.GrossValue.String())
	assert.Equal(t, 4, l.CurrentQuantity)
	assert.Equal(t, lot.StatusConfined, l.Status)
	require.Len(t, rev.inputs, 1)
	assert.Equal(t, res.Sale.ID, *rev.inputs[0].SaleID)
	assert.Equal(t, "Venda de gado - Lote LOT-001", rev.inputs[0].Description)
	assert.Equal(t, []string{"2026-05"}, mk.months)

	got, err := svc.SaleDate(ctx, res.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, saleDate, got)

	_, err = svc.Create(ctx, CreateInput{LotID: l.ID, SaleDate: saleDate, Quantity: 5})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientQuantity))

	_, err = svc.Create(ctx, CreateInput{LotID: l.ID, SaleDate: saleDate, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, lot.StatusSold, l.Status)
	assert.Len(t, rev.inputs, 1, "revenue only on request")
}

func TestSale_Validate(t *testing.T) {
	s := &Sale{Quantity: 0, SaleDate: time.Now()}
	assert.Error(t, s.Validate(context.Background()))
}

func TestService_CreateTakesHeadsOutOfPen(t *testing.T) {
	ctx := context.Background()
	l := &lot.Lot{Code: "LOT-002", HeadCount: 10, CurrentQuantity: 10, Status: lot.StatusConfined}
	l.ID = id.New()
	penID := id.New()
	pl := &placements{links: []pen.Link{
		{ID: id.New(), LotID: l.ID, PenID: penID, Quantity: 10, AllocatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)},
	}}
	svc := NewService(&memRepo{sales: make(map[id.ID]Sale)}, &tx.NopManager{}, &stock{l: l}, nil, &marker{}, pl)

	res, err := svc.Create(ctx, CreateInput{
		LotID: l.ID, SaleDate: time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC), Quantity: 7,
		TotalWeight: types.MustMoney("3850"), PricePerKg: types.MustMoney("10"),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Sale.PenID, "single-pen lot")
	assert.Equal(t, penID, *res.Sale.PenID)
	assert.Equal(t, []pen.Move{{PenID: penID, Quantity: 7}}, pl.withdrawn)
	assert.Equal(t, []id.ID{penID}, pl.refreshed)
}
