package document_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"boigordo/internal/core/id"
	"boigordo/internal/domain/mortality"
	"boigordo/internal/infrastructure/storage/postgres"
)

// MortalityRepo implements mortality.Repository over mortality_records.
// Rows are never updated; corrections are new rows pointing at the original.
type MortalityRepo struct {
	postgres.Table[mortality.Record]
}

var _ mortality.Repository = (*MortalityRepo)(nil)

func NewMortalityRepo(txm *postgres.TxManager) *MortalityRepo {
	return &MortalityRepo{Table: postgres.NewTable[mortality.Record](txm, "mortality_records", "mortality record")}
}

func (r *MortalityRepo) Create(ctx context.Context, rec *mortality.Record) error {
	return r.Insert(ctx, rec)
}

func (r *MortalityRepo) Get(ctx context.Context, recordID id.ID) (*mortality.Record, error) {
	return r.Table.Get(ctx, recordID, false)
}

func (r *MortalityRepo) List(ctx context.Context, f mortality.Filter) ([]mortality.Record, error) {
	q := r.SelectAll()
	if len(f.LotIDs) > 0 {
		q = q.Where(squirrel.Eq{"lot_id": f.LotIDs})
	}
	if !f.From.IsZero() {
		q = q.Where(squirrel.GtOrEq{"death_date": f.From})
	}
	if !f.To.IsZero() {
		q = q.Where(squirrel.Lt{"death_date": f.To})
	}
	return r.Many(ctx, q.OrderBy("death_date", "created_at"))
}

// IsCompensated reports whether a correction already points at recordID.
func (r *MortalityRepo) IsCompensated(ctx context.Context, recordID id.ID) (bool, error) {
	sql, args, err := postgres.Builder().
		Select().Column("EXISTS (SELECT 1 FROM mortality_records WHERE compensates = ?)", recordID).
		ToSql()
	if err != nil {
		return false, err
	}
	var exists bool
	if err := r.Querier(ctx).QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
