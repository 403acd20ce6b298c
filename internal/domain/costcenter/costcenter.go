// Package costcenter groups ledger records into a hierarchy of responsibility
// areas and rolls their subtotals up the tree.
package costcenter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/entity"
	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/ledger"
)

// Type classifies a cost center.
type Type string

const (
	TypeAcquisition    Type = "acquisition"
	TypeFattening      Type = "fattening"
	TypeAdministrative Type = "administrative"
	TypeFinancial      Type = "financial"
	TypeRevenue        Type = "revenue"
)

// IsValid reports whether t is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeAcquisition, TypeFattening, TypeAdministrative, TypeFinancial, TypeRevenue:
		return true
	}
	return false
}

// CostCenter is a node of the hierarchy.
type CostCenter struct {
	entity.BaseEntity

	Code     string `db:"code" json:"code"`
	Name     string `db:"name" json:"name"`
	Type     Type   `db:"type" json:"type"`
	ParentID *id.ID `db:"parent_id" json:"parentId,omitempty"`
	Active   bool   `db:"active" json:"active"`
}

// Validate checks cost center invariants.
func (c *CostCenter) Validate(_ context.Context) error {
	if strings.TrimSpace(c.Code) == "" {
		return apperror.NewValidation("code is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return apperror.NewValidation("name is required")
	}
	if !c.Type.IsValid() {
		return apperror.NewValidation("invalid cost center type").WithDetail("type", c.Type)
	}
	return nil
}

// Node is a cost center with its children.
type Node struct {
	CostCenter
	Children []*Node `json:"children,omitempty"`
}

// BuildTree arranges centers into root nodes ordered by code. Centers whose
// parent is missing become roots.
func BuildTree(centers []CostCenter) []*Node {
	nodes := make(map[id.ID]*Node, len(centers))
	for _, c := range centers {
		nodes[c.ID] = &Node{CostCenter: c}
	}
	var roots []*Node
	for _, c := range centers {
		n := nodes[c.ID]
		if c.ParentID != nil {
			if parent, ok := nodes[*c.ParentID]; ok {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	sortNodes(roots)
	return roots
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Code < nodes[j].Code })
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// Repository persists cost centers.
type Repository interface {
	Create(ctx context.Context, c *CostCenter) error
	Get(ctx context.Context, centerID id.ID) (*CostCenter, error)
	List(ctx context.Context) ([]CostCenter, error)
	// Descendants returns centerID and every center below it.
	Descendants(ctx context.Context, centerID id.ID) ([]id.ID, error)
}

// RecordLister loads ledger records.
type RecordLister interface {
	ListUnpaged(ctx context.Context, f ledger.Filter) ([]ledger.Record, error)
}

// Service manages cost centers.
type Service struct {
	repo    Repository
	records RecordLister
}

// NewService creates a cost center service.
func NewService(repo Repository, records RecordLister) *Service {
	return &Service{repo: repo, records: records}
}

// CreateInput describes a new cost center.
type CreateInput struct {
	Code     string
	Name     string
	Type     Type
	ParentID *id.ID
}

// Create registers a cost center under an optional parent.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CostCenter, error) {
	c := &CostCenter{
		BaseEntity: entity.NewBaseEntity(),
		Code:       strings.TrimSpace(in.Code),
		Name:       strings.TrimSpace(in.Name),
		Type:       in.Type,
		ParentID:   in.ParentID,
		Active:     true,
	}
	if err := c.Validate(ctx); err != nil {
		return nil, err
	}
	if c.ParentID != nil {
		parent, err := s.repo.Get(ctx, *c.ParentID)
		if err != nil {
			return nil, err
		}
		if !parent.Active {
			return nil, apperror.NewValidation("parent cost center is inactive")
		}
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create cost center: %w", err)
	}
	return c, nil
}

// Get returns a cost center.
func (s *Service) Get(ctx context.Context, centerID id.ID) (*CostCenter, error) {
	return s.repo.Get(ctx, centerID)
}

// Tree returns the whole hierarchy.
func (s *Service) Tree(ctx context.Context) ([]*Node, error) {
	centers, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cost centers: %w", err)
	}
	return BuildTree(centers), nil
}

// Subtotal is a month's movement of a center and its descendants.
type Subtotal struct {
	CostCenterID id.ID       `json:"costCenterId"`
	Month        string      `json:"month"`
	Expenses     types.Money `json:"expenses"`
	Revenues     types.Money `json:"revenues"`
	Net          types.Money `json:"net"`
	Records      int         `json:"records"`
	Centers      int         `json:"centers"`
}

// Summary totals the records of the center and its descendants by competence month.
func (s *Service) Summary(ctx context.Context, centerID id.ID, month types.Month) (*Subtotal, error) {
	if _, err := s.repo.Get(ctx, centerID); err != nil {
		return nil, err
	}
	ids, err := s.repo.Descendants(ctx, centerID)
	if err != nil {
		return nil, fmt.Errorf("cost center descendants: %w", err)
	}
	from, to := month.Time, month.End()
	records, err := s.records.ListUnpaged(ctx, ledger.Filter{CostCenterIDs: ids, From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	out := &Subtotal{
		CostCenterID: centerID,
		Month:        month.String(),
		Expenses:     decimal.Zero,
		Revenues:     decimal.Zero,
		Centers:      len(ids),
	}
	for _, r := range records {
		if r.DeletionMark || !month.Contains(r.CompetenceDate) {
			continue
		}
		switch r.Kind {
		case ledger.KindExpense:
			out.Expenses = out.Expenses.Add(r.Amount)
		case ledger.KindRevenue:
			out.Revenues = out.Revenues.Add(r.Amount)
		}
		out.Records++
	}
	out.Net = out.Revenues.Sub(out.Expenses)
	return out, nil
}
