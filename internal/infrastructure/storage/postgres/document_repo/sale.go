package document_repo

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"

	"boigordo/internal/core/id"
	"boigordo/internal/domain/sale"
	"boigordo/internal/infrastructure/storage/postgres"
)

// SaleRepo implements sale.Repository.
type SaleRepo struct {
	postgres.Table[sale.Sale]
}

var _ sale.Repository = (*SaleRepo)(nil)

func NewSaleRepo(txm *postgres.TxManager) *SaleRepo {
	return &SaleRepo{Table: postgres.NewTable[sale.Sale](txm, "sales", "sale")}
}

func (r *SaleRepo) Create(ctx context.Context, s *sale.Sale) error {
	return r.Insert(ctx, s)
}

func (r *SaleRepo) Get(ctx context.Context, saleID id.ID) (*sale.Sale, error) {
	return r.Table.Get(ctx, saleID, false)
}

// SaleDate implements ledger.SaleDates.
func (r *SaleRepo) SaleDate(ctx context.Context, saleID id.ID) (time.Time, error) {
	s, err := r.Get(ctx, saleID)
	if err != nil {
		return time.Time{}, err
	}
	return s.SaleDate, nil
}

func (r *SaleRepo) List(ctx context.Context, f sale.Filter) ([]sale.Sale, error) {
	return r.Many(ctx, saleListQuery(r.SelectAll(), f))
}

func saleListQuery(q squirrel.SelectBuilder, f sale.Filter) squirrel.SelectBuilder {
	if len(f.LotIDs) > 0 {
		q = q.Where(squirrel.Eq{"lot_id": f.LotIDs})
	}
	if !f.From.IsZero() {
		q = q.Where(squirrel.GtOrEq{"sale_date": f.From})
	}
	if !f.To.IsZero() {
		q = q.Where(squirrel.Lt{"sale_date": f.To})
	}
	return q.OrderBy("sale_date", "created_at")
}
