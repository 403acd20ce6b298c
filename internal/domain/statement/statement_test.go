package statement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/entity"
	"boigordo/internal/core/id"
	"boigordo/internal/core/tx"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/allocation"
	"boigordo/internal/domain/category"
	"boigordo/internal/domain/ledger"
	"boigordo/internal/domain/lot"
	"boigordo/internal/domain/mortality"
	"boigordo/internal/domain/pen"
	"boigordo/internal/domain/sale"
	"boigordo/internal/domain/scope"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2026, m, d, 0, 0, 0, 0, time.UTC)
}

func item(kind ledger.Kind, code category.Code, amount string, at time.Time, target allocation.TargetType, targetID *id.ID) ledger.Allocated {
	rec := ledger.Record{
		BaseEntity:     entity.NewBaseEntity(),
		Kind:           kind,
		Category:       code,
		Description:    string(code),
		Amount:         types.MustMoney(amount),
		CompetenceDate: at,
	}
	return ledger.Allocated{
		Record: rec,
		Allocation: allocation.Allocation{
			ID: id.New(), RecordID: rec.ID, TargetType: target, TargetID: targetID,
			Amount: rec.Amount, Percentage: types.Hundred(),
		},
		RecognizedAt: at,
	}
}

type fixture struct {
	lotA, lotB *lot.Lot
	penID      id.ID
	occ        *pen.Occupancy
	items      []ledger.Allocated
	sales      []sale.Sale
}

func newFixture() *fixture {
	snap := id.New()
	f := &fixture{
		lotA:  &lot.Lot{BaseEntity: entity.NewBaseEntity(), Code: "LOT-001", HeadCount: 100, CostPerHead: types.MustMoney("2870"), CostSnapshotID: &snap},
		lotB:  &lot.Lot{BaseEntity: entity.NewBaseEntity(), Code: "LOT-002", HeadCount: 50, CostPerHead: types.MustMoney("3000")},
		penID: id.New(),
	}
	f.occ = pen.NewOccupancy([]pen.Link{
		{ID: id.New(), LotID: f.lotA.ID, PenID: f.penID, Quantity: 30, AllocatedAt: day(1, 1), Status: pen.LinkActive},
		{ID: id.New(), LotID: f.lotB.ID, PenID: f.penID, Quantity: 10, AllocatedAt: day(1, 1), Status: pen.LinkActive},
	})
	f.items = []ledger.Allocated{
		item(ledger.KindRevenue, category.CattleSale, "30000", day(3, 15), allocation.TargetLot, &f.lotA.ID),
		item(ledger.KindExpense, category.FreightOut, "1000", day(3, 15), allocation.TargetLot, &f.lotA.ID),
		item(ledger.KindExpense, category.Administrative, "2000", day(3, 5), allocation.TargetGlobal, nil),
		item(ledger.KindExpense, category.Feed, "4000", day(3, 10), allocation.TargetPen, &f.penID),
		item(ledger.KindExpense, category.Energy, "500", day(3, 20), allocation.TargetGlobal, nil),
		item(ledger.KindRevenue, category.CattleSale, "9999", day(4, 2), allocation.TargetLot, &f.lotA.ID),
	}
	f.sales = []sale.Sale{
		{ID: id.New(), LotID: f.lotA.ID, SaleDate: day(3, 15), Quantity: 10},
	}
	return f
}

func (f *fixture) inputs(sc scope.Scope) Inputs {
	return Inputs{
		Month:     types.MonthOf(day(3, 1)),
		Scope:     sc,
		Allocated: f.items,
		Sales:     f.sales,
		Lots:      map[id.ID]*lot.Lot{f.lotA.ID: f.lotA, f.lotB.ID: f.lotB},
		Mortality: types.MustMoney("5740"),
		Occupancy: f.occ,
		Mappings:  category.MustDefaultTable(),
		At:        day(4, 1),
	}
}

func TestCompute_GlobalScope(t *testing.T) {
	f := newFixture()
	st := Compute(f.inputs(scope.Global()))

	assert.Equal(t, "30000", st.GrossRevenue.String())
	assert.Equal(t, "1000", st.SalesDeductions.String())
	assert.Equal(t, "5740", st.MortalityDeductions.String())
	assert.Equal(t, "6740", st.Deductions.String())
	assert.Equal(t, "23260", st.NetRevenue.String())
	assert.Equal(t, "28700", st.TotalCosts.String(), "cost recognized at sale, pen feed is not a period cost")
	assert.Equal(t, "-5440", st.GrossProfit.String())
	assert.Equal(t, "2500", st.TotalExpenses.String(), "administrative plus global energy")
	assert.Equal(t, "-7940", st.NetProfit.String())
	assert.Equal(t, 10, st.SoldHeads)
	assert.Equal(t, StatusComplete, st.Status)
	assert.Equal(t, day(4, 1), st.GeneratedAt)
}

func TestCompute_LotScopeIgnoresGlobalRecords(t *testing.T) {
	f := newFixture()
	in := f.inputs(scope.Lot(f.lotA.ID))
	in.Mortality = types.Zero()
	st := Compute(in)

	assert.Equal(t, "30000", st.GrossRevenue.String())
	assert.Equal(t, "1000", st.Deductions.String())
	assert.Equal(t, "28700", st.TotalCosts.String())
	assert.Equal(t, "0", st.TotalExpenses.String())
	assert.Equal(t, "300", st.NetProfit.String())
}

func TestCompute_PenScopeWeightsLotRecords(t *testing.T) {
	f := newFixture()
	other := id.New()
	f.occ = pen.NewOccupancy([]pen.Link{
		{ID: id.New(), LotID: f.lotA.ID, PenID: other, Quantity: 90, AllocatedAt: day(1, 1), Status: pen.LinkActive},
		{ID: id.New(), LotID: f.lotA.ID, PenID: f.penID, Quantity: 10, AllocatedAt: day(1, 1), Status: pen.LinkActive},
	})
	in := f.inputs(scope.Pen(f.penID))
	in.Mortality = types.Zero()
	st := Compute(in)

	// lot A keeps 10% of its heads in the pen
	assert.Equal(t, "3000", st.GrossRevenue.String())
	assert.Equal(t, "100", st.Deductions.String())
	assert.Equal(t, "2870", st.TotalCosts.String())
	assert.Equal(t, 1, st.SoldHeads)
}

func TestCompute_IncompleteReasons(t *testing.T) {
	f := newFixture()
	f.items = append(f.items, item(ledger.KindExpense, category.Code("mystery"), "10", day(3, 3), allocation.TargetGlobal, nil))
	f.sales = append(f.sales, sale.Sale{ID: id.New(), LotID: f.lotB.ID, SaleDate: day(3, 20), Quantity: 2})

	st := Compute(f.inputs(scope.Global()))

	assert.Equal(t, StatusIncomplete, st.Status)
	require.Len(t, st.Reasons, 2)
	assert.Contains(t, st.Reasons, "lot LOT-002 has no cost snapshot")
	assert.Equal(t, "28700", st.TotalCosts.String(), "unvalued sale is reported, not zeroed into costs")
}

func TestAllocationWeight(t *testing.T) {
	f := newFixture()
	at := day(3, 1)
	penAlloc := allocation.Allocation{TargetType: allocation.TargetPen, TargetID: &f.penID}
	lotAlloc := allocation.Allocation{TargetType: allocation.TargetLot, TargetID: &f.lotB.ID}
	global := allocation.Allocation{TargetType: allocation.TargetGlobal}

	assert.Equal(t, "0.75", AllocationWeight(penAlloc, scope.Lot(f.lotA.ID), at, f.occ).String())
	assert.Equal(t, "1", AllocationWeight(lotAlloc, scope.Pen(f.penID), at, f.occ).String())
	assert.True(t, AllocationWeight(global, scope.Lot(f.lotA.ID), at, f.occ).IsZero())
	assert.Equal(t, "1", AllocationWeight(global, scope.Global(), at, f.occ).String())
	assert.True(t, AllocationWeight(lotAlloc, scope.Lot(f.lotA.ID), at, f.occ).IsZero())
}

func TestSaleWeight_SoldOutLotKeepsPenShare(t *testing.T) {
	lotID, penA, penB := id.New(), id.New(), id.New()
	sold := day(3, 20)
	// The sale took every head out of both pens at the sale date.
	occ := pen.NewOccupancy([]pen.Link{
		{ID: id.New(), LotID: lotID, PenID: penA, Quantity: 30, AllocatedAt: day(3, 1), ReleasedAt: &sold, Status: pen.LinkReleased},
		{ID: id.New(), LotID: lotID, PenID: penB, Quantity: 10, AllocatedAt: day(3, 1), ReleasedAt: &sold, Status: pen.LinkReleased},
	})
	sl := sale.Sale{LotID: lotID, SaleDate: sold, Quantity: 40}

	assert.Equal(t, "0.75", SaleWeight(sl, scope.Pen(penA), occ).String())
	assert.Equal(t, "0.25", SaleWeight(sl, scope.Pen(penB), occ).String())
	sl.PenID = &penA
	assert.True(t, SaleWeight(sl, scope.Pen(penB), occ).IsZero())
}

func TestRollup(t *testing.T) {
	months := types.MonthsBetween(types.MonthOf(day(1, 1)), types.MonthOf(day(4, 1)))
	jan := &Statement{ReferenceMonth: day(1, 1), NetProfit: types.MustMoney("100"), GrossRevenue: types.MustMoney("500"), Status: StatusComplete}
	mar := &Statement{ReferenceMonth: day(3, 1), NetProfit: types.MustMoney("-40"), GrossRevenue: types.MustMoney("60"), Status: StatusIncomplete, Reasons: []string{"x"}}

	rep := Rollup(scope.Global(), months, []*Statement{jan, nil, mar, nil})

	require.Len(t, rep.Months, 4)
	assert.Equal(t, "2026-01", rep.From)
	assert.Equal(t, "2026-04", rep.To)
	assert.False(t, rep.Months[1].HasStatement)
	assert.Equal(t, "0", rep.Months[1].NetProfit.String())
	assert.Equal(t, "100", rep.Months[1].CumulativeNet.String())
	assert.Equal(t, "60", rep.Months[3].CumulativeNet.String())
	assert.Equal(t, "560", rep.Totals.GrossRevenue.String())
	assert.Equal(t, "2026-01", rep.Best.Month)
	assert.Equal(t, "2026-03", rep.Worst.Month)
	assert.True(t, rep.Incomplete)
}

type memRepo struct {
	rows    map[string]*Statement
	upserts int
}

func key(month types.Month, sc scope.Scope) string { return month.String() + "|" + sc.String() }

func (r *memRepo) Upsert(_ context.Context, st *Statement) (*Statement, error) {
	r.upserts++
	k := key(st.Month(), st.Scope())
	if prev, ok := r.rows[k]; ok {
		st.ID = prev.ID
		st.Version = prev.Version + 1
	}
	cp := *st
	r.rows[k] = &cp
	return &cp, nil
}

func (r *memRepo) Find(_ context.Context, month types.Month, sc scope.Scope) (*Statement, error) {
	if st, ok := r.rows[key(month, sc)]; ok {
		cp := *st
		return &cp, nil
	}
	return nil, nil
}

func (r *memRepo) List(_ context.Context, from, to types.Month, sc scope.Scope) ([]Statement, error) {
	var out []Statement
	for _, m := range types.MonthsBetween(from, to) {
		if st, ok := r.rows[key(m, sc)]; ok {
			out = append(out, *st)
		}
	}
	return out, nil
}

type records struct{ items []ledger.Allocated }

func (r records) ListAllocated(_ context.Context, f ledger.AllocatedFilter) ([]ledger.Allocated, error) {
	var out []ledger.Allocated
	for _, it := range r.items {
		if !it.RecognizedAt.Before(f.RecognizedFrom) && it.RecognizedAt.Before(f.RecognizedTo) {
			out = append(out, it)
		}
	}
	return out, nil
}

type sales struct{ all []sale.Sale }

func (s sales) List(_ context.Context, f sale.Filter) ([]sale.Sale, error) {
	var out []sale.Sale
	for _, sl := range s.all {
		if !sl.SaleDate.Before(f.From) && sl.SaleDate.Before(f.To) {
			out = append(out, sl)
		}
	}
	return out, nil
}

type lots map[id.ID]*lot.Lot

func (l lots) Get(_ context.Context, lotID id.ID) (*lot.Lot, error) {
	if x, ok := l[lotID]; ok {
		return x, nil
	}
	return nil, apperror.NewNotFound("lot", lotID.String())
}

type pens map[id.ID]bool

func (p pens) Exists(_ context.Context, penID id.ID) (bool, error) { return p[penID], nil }

type deaths struct{ total types.Money }

func (d deaths) ComputeDeduction(_ context.Context, sc scope.Scope, p types.Period) (*mortality.Deduction, error) {
	return &mortality.Deduction{Scope: sc.String(), From: p.From, To: p.To, Total: d.total}, nil
}

type placements struct{ occ *pen.Occupancy }

func (p placements) Occupancy(context.Context, time.Time, time.Time) (*pen.Occupancy, error) {
	return p.occ, nil
}

type mappings struct{}

func (mappings) Table(context.Context) (*category.Table, error) { return category.MustDefaultTable(), nil }

type dirty struct {
	revisions map[string]int64
	// onPin runs after the revision is read, like a writer committing mid-generation.
	onPin func()
}

func (d *dirty) Pin(_ context.Context, month types.Month) (int64, error) {
	rev := d.revisions[month.String()]
	if d.onPin != nil {
		d.onPin()
	}
	return rev, nil
}

func (d *dirty) IsStale(_ context.Context, month types.Month, revision int64) (bool, error) {
	return d.revisions[month.String()] > revision, nil
}

type memCache struct{ rows map[string]*Statement }

func (c *memCache) Get(_ context.Context, month types.Month, sc scope.Scope) (*Statement, bool, error) {
	st, ok := c.rows[key(month, sc)]
	return st, ok, nil
}

func (c *memCache) Set(_ context.Context, st *Statement) error {
	c.rows[key(st.Month(), st.Scope())] = st
	return nil
}

type observer struct{ statuses []string }

func (o *observer) ObserveStatement(status string, _ time.Duration) {
	o.statuses = append(o.statuses, status)
}

type harness struct {
	svc   *Service
	repo  *memRepo
	txm   *tx.NopManager
	dirty *dirty
	cache *memCache
	obs   *observer
	f     *fixture
}

func newHarness() *harness {
	f := newFixture()
	h := &harness{
		repo:  &memRepo{rows: map[string]*Statement{}},
		txm:   &tx.NopManager{},
		dirty: &dirty{revisions: map[string]int64{}},
		cache: &memCache{rows: map[string]*Statement{}},
		obs:   &observer{},
		f:     f,
	}
	h.svc = NewService(Deps{
		Repo:       h.repo,
		Tx:         h.txm,
		Records:    records{items: f.items},
		Sales:      sales{all: f.sales},
		Lots:       lots{f.lotA.ID: f.lotA, f.lotB.ID: f.lotB},
		Pens:       pens{f.penID: true},
		Mortality:  deaths{total: types.MustMoney("5740")},
		Placements: placements{occ: f.occ},
		Mappings:   mappings{},
		Staleness:  h.dirty,
		Cache:      h.cache,
		Observer:   h.obs,
	})
	clock := day(4, 1)
	h.svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return h
}

func TestService_GenerateTwiceKeepsOneRow(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	march := types.MonthOf(day(3, 1))

	first, err := h.svc.Generate(ctx, march, scope.Global())
	require.NoError(t, err)
	second, err := h.svc.Generate(ctx, march, scope.Global())
	require.NoError(t, err)

	assert.Len(t, h.repo.rows, 1)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Version)
	stored, _ := h.repo.Find(ctx, march, scope.Global())
	assert.Equal(t, second.GeneratedAt, stored.GeneratedAt)
	assert.Equal(t, "-7940", stored.NetProfit.String())
	assert.Equal(t, []string{"statement/2026-03|GLOBAL", "statement/2026-03|GLOBAL"}, h.txm.Locks)
	assert.Equal(t, []string{"COMPLETE", "COMPLETE"}, h.obs.statuses)
}

func TestService_GetRegeneratesOnlyWhenStale(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	march := types.MonthOf(day(3, 1))

	st, err := h.svc.Get(ctx, march, scope.Global())
	require.NoError(t, err)
	assert.Equal(t, 1, h.repo.upserts, "absent statement is generated")

	again, err := h.svc.Get(ctx, march, scope.Global())
	require.NoError(t, err)
	assert.Equal(t, st.GeneratedAt, again.GeneratedAt)
	assert.Equal(t, 1, h.repo.upserts)

	h.dirty.revisions["2026-03"] = 1
	fresh, err := h.svc.Get(ctx, march, scope.Global())
	require.NoError(t, err)
	assert.Equal(t, 2, h.repo.upserts)
	assert.True(t, fresh.GeneratedAt.After(st.GeneratedAt))
	assert.Equal(t, int64(1), fresh.InputRevision)
}

func TestService_ChangeCommittedDuringGenerationIsStale(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	march := types.MonthOf(day(3, 1))
	h.dirty.revisions["2026-03"] = 4

	// The writer's mark lands after the revision was read but carries an
	// earlier wall-clock time than the generation.
	h.dirty.onPin = func() { h.dirty.revisions["2026-03"] = 5 }
	st, err := h.svc.Generate(ctx, march, scope.Global())
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.InputRevision)
	h.dirty.onPin = nil

	again, err := h.svc.Get(ctx, march, scope.Global())
	require.NoError(t, err)
	assert.Equal(t, 2, h.repo.upserts, "stored row built from revision 4 is regenerated")
	assert.Equal(t, int64(5), again.InputRevision)

	_, err = h.svc.Get(ctx, march, scope.Global())
	require.NoError(t, err)
	assert.Equal(t, 2, h.repo.upserts)
}

func TestService_Perpetual(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	march := types.MonthOf(day(3, 1))

	_, err := h.svc.Generate(ctx, march, scope.Global())
	require.NoError(t, err)

	rep, err := h.svc.Perpetual(ctx, types.MonthOf(day(2, 1)), types.MonthOf(day(4, 1)), scope.Global())
	require.NoError(t, err)
	require.Len(t, rep.Months, 3)
	assert.False(t, rep.Months[0].HasStatement)
	assert.True(t, rep.Months[1].HasStatement)
	assert.Equal(t, "-7940", rep.Totals.NetProfit.String())
	assert.Equal(t, "2026-03", rep.Best.Month)

	_, err = h.svc.Perpetual(ctx, types.MonthOf(day(4, 1)), types.MonthOf(day(2, 1)), scope.Global())
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestService_UnknownScopeTarget(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	march := types.MonthOf(day(3, 1))

	_, err := h.svc.Generate(ctx, march, scope.Pen(id.New()))
	assert.True(t, apperror.IsNotFound(err))
	_, err = h.svc.Generate(ctx, march, scope.Lot(id.New()))
	assert.True(t, apperror.IsNotFound(err))
	assert.Empty(t, h.repo.rows)
}
