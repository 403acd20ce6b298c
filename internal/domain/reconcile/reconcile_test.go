package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "boigordo/internal/core/context"
	"boigordo/internal/core/apperror"
	"boigordo/internal/core/entity"
	"boigordo/internal/core/id"
	"boigordo/internal/core/tx"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/category"
	"boigordo/internal/domain/ledger"
)

var base = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

func rec(code category.Code, desc, amount string, at time.Time, lotID *id.ID, created time.Time) ledger.Record {
	r := ledger.Record{
		BaseEntity:     entity.NewBaseEntity(),
		Kind:           ledger.KindExpense,
		Category:       code,
		Description:    desc,
		Amount:         types.MustMoney(amount),
		CompetenceDate: at,
		LotID:          lotID,
	}
	r.CreatedAt = created
	return r
}

func TestScan_FlagsDuplicatesWithinOneDay(t *testing.T) {
	lotID := id.New()
	linked := rec(category.Feed, "Ração lote 3", "1500", base, &lotID, base.Add(2*time.Hour))
	copy1 := rec(category.Feed, "  RAÇÃO  lote 3", "1500.00", base.Add(20*time.Hour), nil, base)
	other := rec(category.Feed, "Sal mineral", "1500", base, nil, base)
	later := rec(category.Feed, "Ração lote 3", "1500", base.AddDate(0, 0, 3), nil, base)

	rep := Scan([]ledger.Record{copy1, other, linked, later}, category.MustDefaultTable(), base)

	require.Len(t, rep.Duplicates, 1)
	g := rep.Duplicates[0]
	assert.Equal(t, linked.ID, g.Canonical.ID, "linked record wins over the older copy")
	require.Len(t, g.Duplicates, 1)
	assert.Equal(t, copy1.ID, g.Duplicates[0].ID)
	assert.Empty(t, rep.Orphans, "feed does not require a lot")
	assert.Equal(t, 4, rep.Scanned)
}

func TestScan_OlderWinsWhenNeitherLinked(t *testing.T) {
	a := rec(category.Energy, "Conta de luz", "420", base, nil, base.Add(time.Hour))
	b := rec(category.Energy, "Conta de luz", "420", base.Add(12*time.Hour), nil, base)

	rep := Scan([]ledger.Record{a, b}, category.MustDefaultTable(), base)
	require.Len(t, rep.Duplicates, 1)
	assert.Equal(t, b.ID, rep.Duplicates[0].Canonical.ID)
}

func TestScan_OrphanWithLinkedTwin(t *testing.T) {
	lotID := id.New()
	linked := rec(category.AnimalPurchase, "Compra de gado - Lote LOT-001", "287000", base, &lotID, base)
	orphan := rec(category.AnimalPurchase, "Compra de gado - Lote LOT-001", "287000", base.AddDate(0, 0, 5), nil, base.AddDate(0, 0, 5))
	lonely := rec(category.Freight, "Frete avulso", "800", base, nil, base)
	deleted := orphan
	deleted.ID = id.New()
	deleted.MarkDeleted("op", base)

	rep := Scan([]ledger.Record{linked, orphan, lonely, deleted}, category.MustDefaultTable(), base)

	require.Len(t, rep.Orphans, 1)
	assert.Equal(t, orphan.ID, rep.Orphans[0].Record.ID)
	assert.Equal(t, linked.ID, rep.Orphans[0].Twin.ID)
	require.Len(t, rep.Warnings, 1)
	assert.Equal(t, WarnUnlinkedLotCategory, rep.Warnings[0].Code)
	assert.Equal(t, lonely.ID, rep.Warnings[0].RecordID)

	_, flagged := rep.Candidates()[orphan.ID]
	assert.True(t, flagged)
	_, flagged = rep.Candidates()[linked.ID]
	assert.False(t, flagged)
}

type fakeLedger struct {
	records []ledger.Record
	deleted    []id.ID
	reconciled []id.ID
	by         string
}

func (l *fakeLedger) ListUnpaged(context.Context, ledger.Filter) ([]ledger.Record, error) {
	return l.records, nil
}

func (l *fakeLedger) Reconcile(_ context.Context, recordID id.ID) (*ledger.ReconcileResult, error) {
	l.reconciled = append(l.reconciled, recordID)
	res := &ledger.ReconcileResult{RecordID: recordID}
	for _, r := range l.records {
		if r.ID == recordID && r.LotID != nil {
			res.Lots = append(res.Lots, *r.LotID)
		}
	}
	return res, nil
}

func (l *fakeLedger) SoftDelete(_ context.Context, records []ledger.Record, by string) error {
	for _, r := range records {
		l.deleted = append(l.deleted, r.ID)
	}
	l.by = by
	return nil
}

type mappings struct{}

func (mappings) Table(context.Context) (*category.Table, error) { return category.MustDefaultTable(), nil }

type auditLog struct{ entries []id.ID }

func (a *auditLog) LogChange(_ context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error {
	if entityType == "monetary_record" && action == "delete" && changes["reason"] != nil {
		a.entries = append(a.entries, entityID)
	}
	return nil
}

func TestService_Cleanup(t *testing.T) {
	lotID := id.New()
	linked := rec(category.AnimalPurchase, "Compra de gado - Lote LOT-001", "287000", base, &lotID, base)
	orphan := rec(category.AnimalPurchase, "Compra de gado - Lote LOT-001", "287000", base.AddDate(0, 0, 5), nil, base)
	l := &fakeLedger{records: []ledger.Record{linked, orphan}}
	audit := &auditLog{}
	svc := NewService(l, mappings{}, audit, &tx.NopManager{})

	_, err := svc.Cleanup(context.Background(), []id.ID{orphan.ID}, "legacy import")
	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))

	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "ana", Roles: []string{appctx.RoleOperator}})

	_, err = svc.Cleanup(ctx, []id.ID{orphan.ID, linked.ID}, "legacy import")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	assert.Empty(t, l.deleted, "nothing deleted when any id is refused")

	res, err := svc.Cleanup(ctx, []id.ID{orphan.ID}, "legacy import")
	require.NoError(t, err)
	assert.Equal(t, []id.ID{orphan.ID}, res.Deleted)
	assert.Equal(t, []id.ID{orphan.ID}, l.deleted)
	assert.Equal(t, "ana", l.by)
	assert.Equal(t, []id.ID{orphan.ID}, audit.entries)
	assert.Equal(t, []id.ID{orphan.ID}, l.reconciled)
	assert.Empty(t, res.Recomputed, "the orphan reached no lot")
}

func TestService_CleanupRecomputesLots(t *testing.T) {
	lotID := id.New()
	first := rec(category.Feed, "Ração lote 3", "1500", base, &lotID, base)
	again := rec(category.Feed, "Ração lote 3", "1500", base.Add(2*time.Hour), &lotID, base.Add(time.Hour))
	l := &fakeLedger{records: []ledger.Record{first, again}}
	svc := NewService(l, mappings{}, &auditLog{}, &tx.NopManager{})
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "ana", Roles: []string{appctx.RoleOperator}})

	res, err := svc.Cleanup(ctx, []id.ID{again.ID}, "entered twice")
	require.NoError(t, err)
	assert.Equal(t, []id.ID{again.ID}, res.Deleted)
	assert.Equal(t, []id.ID{lotID}, res.Recomputed)
}

func TestScan_ChainsDuplicatesDayByDay(t *testing.T) {
	d0 := rec(category.Energy, "Conta de luz", "420", base, nil, base)
	d1 := rec(category.Energy, "Conta de luz", "420", base.AddDate(0, 0, 1), nil, base.Add(time.Hour))
	d2 := rec(category.Energy, "Conta de luz", "420", base.AddDate(0, 0, 2), nil, base.Add(2*time.Hour))

	rep := Scan([]ledger.Record{d2, d0, d1}, category.MustDefaultTable(), base)
	require.Len(t, rep.Duplicates, 1, "one run through consecutive days")
	g := rep.Duplicates[0]
	assert.Equal(t, d0.ID, g.Canonical.ID)
	require.Len(t, g.Duplicates, 2)
	dups := []id.ID{g.Duplicates[0].ID, g.Duplicates[1].ID}
	assert.ElementsMatch(t, []id.ID{d1.ID, d2.ID}, dups)
}
