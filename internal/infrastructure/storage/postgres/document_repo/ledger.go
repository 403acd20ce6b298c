// Package document_repo provides PostgreSQL repositories for the dated events
// of the operation: monetary records with their allocations, sales and deaths.
package document_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/allocation"
	"boigordo/internal/domain/ledger"
	"boigordo/internal/infrastructure/storage/postgres"
)

// LedgerRepo implements ledger.Repository over monetary_records and allocations.
type LedgerRepo struct {
	records postgres.Table[ledger.Record]
	allocs  postgres.Table[allocation.Allocation]
	batch   *postgres.BatchInserter
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// NewLedgerRepo creates a ledger repository.
func NewLedgerRepo(txm *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		records: postgres.NewTable[ledger.Record](txm, "monetary_records", "monetary record"),
		allocs:  postgres.NewTable[allocation.Allocation](txm, "allocations", "allocation"),
		batch:   postgres.NewBatchInserter(txm),
	}
}

func (r *LedgerRepo) Create(ctx context.Context, rec *ledger.Record) error {
	return r.records.Insert(ctx, rec)
}

// CreateAllocations copies the allocations of one record in a single round trip.
func (r *LedgerRepo) CreateAllocations(ctx context.Context, allocs []allocation.Allocation) error {
	rows := make([][]any, len(allocs))
	for i := range allocs {
		rows[i] = postgres.RowValues(&allocs[i], r.allocs.Columns())
	}
	if _, err := r.batch.CopyFromSlice(ctx, r.allocs.Name(), r.allocs.Columns(), rows); err != nil {
		return fmt.Errorf("insert allocations: %w", err)
	}
	return nil
}

func (r *LedgerRepo) Get(ctx context.Context, recordID id.ID) (*ledger.Record, error) {
	return r.records.Get(ctx, recordID, false)
}

func (r *LedgerRepo) GetForUpdate(ctx context.Context, recordID id.ID) (*ledger.Record, error) {
	return r.records.Get(ctx, recordID, true)
}

// AllocationsOf groups the allocations of the given records by record id.
func (r *LedgerRepo) AllocationsOf(ctx context.Context, recordIDs ...id.ID) (map[id.ID][]allocation.Allocation, error) {
	out := make(map[id.ID][]allocation.Allocation, len(recordIDs))
	if len(recordIDs) == 0 {
		return out, nil
	}
	rows, err := r.allocs.Many(ctx, r.allocs.SelectAll().
		Where(squirrel.Eq{"record_id": recordIDs}).
		OrderBy("record_id", "created_at", "id"))
	if err != nil {
		return nil, err
	}
	for _, a := range rows {
		out[a.RecordID] = append(out[a.RecordID], a)
	}
	return out, nil
}

// List returns records ordered by competence date, newest first.
func (r *LedgerRepo) List(ctx context.Context, f ledger.Filter) ([]ledger.Record, error) {
	return r.records.Many(ctx, recordListQuery(r.records.SelectAll(), f))
}

func recordListQuery(q squirrel.SelectBuilder, f ledger.Filter) squirrel.SelectBuilder {
	if !f.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deletion_mark": false})
	}
	if f.Kind != nil {
		q = q.Where(squirrel.Eq{"kind": *f.Kind})
	}
	if f.Category != nil {
		q = q.Where(squirrel.Eq{"category": f.Category.Normalize()})
	}
	if f.LotID != nil {
		q = q.Where(squirrel.Eq{"lot_id": *f.LotID})
	}
	if f.PenID != nil {
		q = q.Where(squirrel.Eq{"pen_id": *f.PenID})
	}
	if len(f.CostCenterIDs) > 0 {
		q = q.Where(squirrel.Eq{"cost_center_id": f.CostCenterIDs})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"competence_date": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.Lt{"competence_date": *f.To})
	}
	q = q.OrderBy("competence_date DESC", "number DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

// allocatedRow flattens an allocation joined with its record. Allocation
// columns are aliased to keep them apart from the record's.
type allocatedRow struct {
	ledger.Record
	AllocID          id.ID                 `db:"alloc_id"`
	AllocTargetType  allocation.TargetType `db:"alloc_target_type"`
	AllocTargetID    *id.ID                `db:"alloc_target_id"`
	AllocAmount      types.Money           `db:"alloc_amount"`
	AllocPercentage  types.Percentage      `db:"alloc_percentage"`
	AllocSynthesized bool                  `db:"alloc_synthesized"`
	AllocCreatedAt   time.Time             `db:"alloc_created_at"`
	RecognizedAt     time.Time             `db:"recognized_at"`
}

// recognizedAt is the statement date of a record: its sale's date when linked.
const recognizedAt = "COALESCE(s.sale_date, r.competence_date)"

// ListAllocated joins allocations to live records, resolving each record's
// recognition date through its sale.
func (r *LedgerRepo) ListAllocated(ctx context.Context, f ledger.AllocatedFilter) ([]ledger.Allocated, error) {
	q, ok := allocatedQuery(r.records.Columns(), f)
	if !ok {
		return nil, nil
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build allocated query: %w", err)
	}
	var rows []allocatedRow
	if err := pgxscan.Select(ctx, r.records.Querier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list allocated: %w", err)
	}

	out := make([]ledger.Allocated, len(rows))
	for i, row := range rows {
		out[i] = ledger.Allocated{
			Record: row.Record,
			Allocation: allocation.Allocation{
				ID:          row.AllocID,
				RecordID:    row.Record.ID,
				TargetType:  row.AllocTargetType,
				TargetID:    row.AllocTargetID,
				Amount:      row.AllocAmount,
				Percentage:  row.AllocPercentage,
				Synthesized: row.AllocSynthesized,
				CreatedAt:   row.AllocCreatedAt,
			},
			RecognizedAt: row.RecognizedAt,
		}
	}
	return out, nil
}

func allocatedQuery(recordCols []string, f ledger.AllocatedFilter) (squirrel.SelectBuilder, bool) {
	cols := make([]string, 0, len(recordCols)+8)
	for _, c := range recordCols {
		cols = append(cols, "r."+c)
	}
	cols = append(cols,
		"a.id AS alloc_id",
		"a.target_type AS alloc_target_type",
		"a.target_id AS alloc_target_id",
		"a.amount AS alloc_amount",
		"a.percentage AS alloc_percentage",
		"a.synthesized AS alloc_synthesized",
		"a.created_at AS alloc_created_at",
		recognizedAt+" AS recognized_at",
	)
	q := postgres.Builder().
		Select(cols...).
		From("allocations a").
		Join("monetary_records r ON r.id = a.record_id").
		LeftJoin("sales s ON s.id = r.sale_id").
		Where(squirrel.Eq{"r.deletion_mark": false})

	if !f.All {
		var targets squirrel.Or
		if len(f.LotIDs) > 0 {
			targets = append(targets, squirrel.Eq{"a.target_type": allocation.TargetLot, "a.target_id": f.LotIDs})
		}
		if len(f.PenIDs) > 0 {
			targets = append(targets, squirrel.Eq{"a.target_type": allocation.TargetPen, "a.target_id": f.PenIDs})
		}
		if len(targets) == 0 {
			return q, false
		}
		q = q.Where(targets)
	}
	if !f.RecognizedFrom.IsZero() {
		q = q.Where(squirrel.Expr(recognizedAt+" >= ?", f.RecognizedFrom))
	}
	if !f.RecognizedTo.IsZero() {
		q = q.Where(squirrel.Expr(recognizedAt+" < ?", f.RecognizedTo))
	}
	return q.OrderBy("r.competence_date", "r.id", "a.id"), true
}

// MarkSettled flags a record as paid or received.
func (r *LedgerRepo) MarkSettled(ctx context.Context, recordID id.ID, at time.Time, accountID *id.ID) error {
	n, err := r.records.Exec(ctx, postgres.Builder().
		Update(r.records.Name()).
		Set("settled", true).
		Set("settled_at", at).
		Set("payer_account_id", accountID).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": recordID}))
	if err != nil {
		return fmt.Errorf("mark settled: %w", err)
	}
	if n == 0 {
		return apperror.NewNotFound("monetary record", recordID.String())
	}
	return nil
}

// SoftDelete sets the deletion mark on live records.
func (r *LedgerRepo) SoftDelete(ctx context.Context, recordIDs []id.ID, by string, at time.Time) error {
	if len(recordIDs) == 0 {
		return nil
	}
	_, err := r.records.Exec(ctx, postgres.Builder().
		Update(r.records.Name()).
		Set("deletion_mark", true).
		Set("deleted_at", at).
		Set("deleted_by", by).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": recordIDs, "deletion_mark": false}))
	if err != nil {
		return fmt.Errorf("soft delete records: %w", err)
	}
	return nil
}
