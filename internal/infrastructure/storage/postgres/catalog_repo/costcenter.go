package catalog_repo

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"boigordo/internal/core/id"
	"boigordo/internal/domain/costcenter"
	"boigordo/internal/infrastructure/storage/postgres"
)

// CostCenterRepo implements costcenter.Repository.
type CostCenterRepo struct {
	postgres.Table[costcenter.CostCenter]
}

var _ costcenter.Repository = (*CostCenterRepo)(nil)

// NewCostCenterRepo creates a cost center repository.
func NewCostCenterRepo(txm *postgres.TxManager) *CostCenterRepo {
	return &CostCenterRepo{Table: postgres.NewTable[costcenter.CostCenter](txm, "cost_centers", "cost center")}
}

func (r *CostCenterRepo) Create(ctx context.Context, c *costcenter.CostCenter) error {
	return r.Insert(ctx, c)
}

func (r *CostCenterRepo) Get(ctx context.Context, centerID id.ID) (*costcenter.CostCenter, error) {
	return r.Table.Get(ctx, centerID, false)
}

func (r *CostCenterRepo) List(ctx context.Context) ([]costcenter.CostCenter, error) {
	return r.Many(ctx, r.SelectAll().OrderBy("code"))
}

const descendantsSQL = `
	WITH RECURSIVE tree AS (
		SELECT id FROM cost_centers WHERE id = $1
		UNION ALL
		SELECT c.id FROM cost_centers c JOIN tree t ON c.parent_id = t.id
	)
	SELECT id FROM tree`

// Descendants walks the hierarchy below centerID, including it.
func (r *CostCenterRepo) Descendants(ctx context.Context, centerID id.ID) ([]id.ID, error) {
	var ids []id.ID
	if err := pgxscan.Select(ctx, r.Querier(ctx), &ids, descendantsSQL, centerID); err != nil {
		return nil, fmt.Errorf("cost center descendants: %w", err)
	}
	return ids, nil
}
