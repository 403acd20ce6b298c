package category

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
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTable_ResolveDefaults(t *testing.T) {
	table := MustDefaultTable()

	m, ok := table.Resolve("Animal_Purchase ", date(2026, 3, 1), Subject{})
	require.True(t, ok)
	assert.Equal(t, BucketAcquisition, m.Bucket)
	assert.Equal(t, LineCost, m.Line)
	assert.True(t, m.RequiresLot)

	_, ok = table.Resolve("unknown", date(2026, 3, 1), Subject{})
	assert.False(t, ok)

	_, ok = table.Resolve(Feed, date(2019, 12, 31), Subject{})
	assert.False(t, ok, "before the first effective date")
}

func TestTable_ResolvePicksVersionByDate(t *testing.T) {
	cutover := date(2025, 7, 1)
	old := Mapping{
		ID: id.New(), Category: OtherCosts, Bucket: BucketOther, Line: LineCost,
		Section: SectionOperating, Direction: DirectionOutflow,
		EffectiveFrom: DefaultsEffectiveFrom, EffectiveTo: &cutover,
	}
	renamed := Mapping{
		ID: id.New(), Category: OtherCosts, Bucket: BucketOperational, Line: LineCost,
		Section: SectionOperating, Direction: DirectionOutflow,
		EffectiveFrom: cutover,
	}
	table, err := NewTable([]Mapping{old, renamed})
	require.NoError(t, err)

	m, ok := table.Resolve(OtherCosts, date(2025, 6, 30), Subject{})
	require.True(t, ok)
	assert.Equal(t, BucketOther, m.Bucket)

	m, ok = table.Resolve(OtherCosts, cutover, Subject{})
	require.True(t, ok)
	assert.Equal(t, BucketOperational, m.Bucket)

	assert.Len(t, table.History(OtherCosts), 2)
}

func TestTable_MatchPredicate(t *testing.T) {
	catchAll := Mapping{
		ID: id.New(), Category: Freight, Bucket: BucketFreight, Line: LineCost,
		Section: SectionOperating, Direction: DirectionOutflow, EffectiveFrom: DefaultsEffectiveFrom,
	}
	outbound := Mapping{
		ID: id.New(), Category: Freight, Bucket: BucketNone, Line: LineSalesDeduction,
		Section: SectionOperating, Direction: DirectionOutflow, EffectiveFrom: DefaultsEffectiveFrom,
		Match: `description.lowerAscii().contains("venda")`,
	}
	table, err := NewTable([]Mapping{catchAll, outbound})
	require.NoError(t, err)

	m, ok := table.Resolve(Freight, date(2026, 1, 10), Subject{Description: "Frete de VENDA lote 7"})
	require.True(t, ok)
	assert.Equal(t, LineSalesDeduction, m.Line)

	m, ok = table.Resolve(Freight, date(2026, 1, 10), Subject{Description: "Frete compra"})
	require.True(t, ok)
	assert.Equal(t, LineCost, m.Line)
}

func TestCompileMatch_Rejects(t *testing.T) {
	_, err := CompileMatch(`amount +`)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = CompileMatch(`amount * 2.0`)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "non-bool output")

	_, err = CompileMatch(`amount > 1000.0 && kind == "expense"`)
	assert.NoError(t, err)
}

func TestMapping_Validate(t *testing.T) {
	ctx := context.Background()
	base := Mapping{
		Category: "x", Bucket: BucketNone, Line: LineExpense,
		Section: SectionOperating, Direction: DirectionOutflow, EffectiveFrom: DefaultsEffectiveFrom,
	}
	assert.NoError(t, base.Validate(ctx))

	bad := base
	bad.Line = LineCost
	assert.Error(t, bad.Validate(ctx), "cost line needs a bucket")

	bad = base
	bad.Section = "somewhere"
	assert.Error(t, bad.Validate(ctx))

	bad = base
	end := DefaultsEffectiveFrom
	bad.EffectiveTo = &end
	assert.Error(t, bad.Validate(ctx))
}

type memRepo struct {
	rows []Mapping
}

func (r *memRepo) List(context.Context) ([]Mapping, error) { return r.rows, nil }
func (r *memRepo) Count(context.Context) (int, error)      { return len(r.rows), nil }
func (r *memRepo) Insert(_ context.Context, ms ...Mapping) error {
	r.rows = append(r.rows, ms...)
	return nil
}
func (r *memRepo) CloseOpen(_ context.Context, code Code, to time.Time) error {
	for i := range r.rows {
		if r.rows[i].Category == code && r.rows[i].EffectiveTo == nil {
			end := to
			r.rows[i].EffectiveTo = &end
		}
	}
	return nil
}

type recordingMarker struct {
	months []types.Month
}

func (m *recordingMarker) MarkDirty(_ context.Context, _ string, months ...types.Month) error {
	m.months = append(m.months, months...)
	return nil
}

func TestService_AddVersionSupersedes(t *testing.T) {
	ctx := context.Background()
	repo := &memRepo{}
	marker := &recordingMarker{}
	svc := NewService(repo, &tx.NopManager{}, marker)
	svc.now = func() time.Time { return date(2026, 3, 15) }

	require.NoError(t, svc.EnsureDefaults(ctx))
	require.NoError(t, svc.EnsureDefaults(ctx), "second call is a no-op")
	assert.Len(t, repo.rows, len(seeds))

	_, err := svc.AddVersion(ctx, Mapping{
		Category: OtherCosts, DisplayName: "Custos operacionais", Bucket: BucketOperational,
		Line: LineCost, Section: SectionOperating, Direction: DirectionOutflow,
		EffectiveFrom: date(2026, 1, 1),
	})
	require.NoError(t, err)

	table, err := svc.Table(ctx)
	require.NoError(t, err)

	m, ok := table.Resolve(OtherCosts, date(2025, 12, 31), Subject{})
	require.True(t, ok)
	assert.Equal(t, BucketOther, m.Bucket)

	m, ok = table.Resolve(OtherCosts, date(2026, 2, 1), Subject{})
	require.True(t, ok)
	assert.Equal(t, BucketOperational, m.Bucket)

	require.Len(t, marker.months, 3)
	assert.Equal(t, "2026-01", marker.months[0].String())
	assert.Equal(t, "2026-03", marker.months[2].String())
}
