// Package sale registers disposals of animals. A sale is the event that
// recognizes a lot's cost and times its revenue.
package sale

import (
	"context"
	"fmt"
	"time"

	appctx "boigordo/internal/core/context"
	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
	"boigordo/internal/core/tx"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/category"
	"boigordo/internal/domain/ledger"
	"boigordo/internal/domain/lot"
	"boigordo/internal/domain/pen"
	"boigordo/internal/domain/period"
	"boigordo/pkg/logger"
)

// Status of a sale.
type Status string

const StatusConfirmed Status = "CONFIRMED"

// Sale is one disposal of part of a lot.
type Sale struct {
	ID          id.ID       `db:"id" json:"id"`
	LotID       id.ID       `db:"lot_id" json:"lotId"`
	PenID       *id.ID      `db:"pen_id" json:"penId,omitempty"`
	BuyerID     *id.ID      `db:"buyer_id" json:"buyerId,omitempty"`
	SaleDate    time.Time   `db:"sale_date" json:"saleDate"`
	Quantity    int         `db:"quantity" json:"quantity"`
	TotalWeight types.Money `db:"total_weight" json:"totalWeight"`
	PricePerKg  types.Money `db:"price_per_kg" json:"pricePerKg"`
	GrossValue  types.Money `db:"gross_value" json:"grossValue"`
	Status      Status      `db:"status" json:"status"`
	CreatedBy   string      `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
}

// Validate checks sale invariants.
func (s *Sale) Validate(_ context.Context) error {
	if s.Quantity <= 0 {
		return apperror.NewValidation("quantity must be positive")
	}
	if s.SaleDate.IsZero() {
		return apperror.NewValidation("saleDate is required")
	}
	if s.TotalWeight.IsNegative() || s.PricePerKg.IsNegative() || s.GrossValue.IsNegative() {
		return apperror.NewValidation("weights and prices cannot be negative")
	}
	return nil
}

// Filter narrows sale listings. From/To bound the sale date as [from, to).
type Filter struct {
	LotIDs []id.ID
	From   time.Time
	To     time.Time
}

// Repository persists sales.
type Repository interface {
	Create(ctx context.Context, s *Sale) error
	Get(ctx context.Context, saleID id.ID) (*Sale, error)
	List(ctx context.Context, f Filter) ([]Sale, error)
}

// LotStock is the part of the lot service a sale changes.
type LotStock interface {
	AdjustQuantity(ctx context.Context, lotID id.ID, delta int, clamp bool) (*lot.Lot, int, error)
	MarkSold(ctx context.Context, l *lot.Lot) error
}

// RevenueWriter creates the revenue record of a sale.
type RevenueWriter interface {
	Create(ctx context.Context, in ledger.CreateInput) (*ledger.Record, error)
}

// Placements takes sold heads out of their pens.
type Placements interface {
	Occupancy(ctx context.Context, from, to time.Time) (*pen.Occupancy, error)
	Withdraw(ctx context.Context, lotID id.ID, moves []pen.Move, at time.Time) error
	Refresh(ctx context.Context, penIDs []id.ID, at time.Time)
}

// Service registers sales.
type Service struct {
	repo       Repository
	tx         tx.Manager
	lots       LotStock
	revenue    RevenueWriter
	marker     period.Marker
	placements Placements
	now        func() time.Time
}

// NewService creates a sale service. revenue may be nil.
func NewService(repo Repository, txm tx.Manager, lots LotStock, revenue RevenueWriter, marker period.Marker, placements Placements) *Service {
	return &Service{
		repo:       repo,
		tx:         txm,
		lots:       lots,
		revenue:    revenue,
		marker:     marker,
		placements: placements,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput describes a sale.
type CreateInput struct {
	LotID       id.ID
	PenID       *id.ID
	BuyerID     *id.ID
	SaleDate    time.Time
	Quantity    int
	TotalWeight types.Money
	PricePerKg  types.Money
	// GrossValue defaults to TotalWeight × PricePerKg.
	GrossValue *types.Money
	// RecordRevenue writes the cattle_sale revenue record linked to the sale.
	RecordRevenue bool
}

// Result is a registered sale and its optional revenue record.
type Result struct {
	Sale    *Sale          `json:"sale"`
	Revenue *ledger.Record `json:"revenue,omitempty"`
}

// Create registers the sale, removes the heads from the lot and its pens and
// moves a lot with no heads left to SOLD, all in one transaction. A lot placed
// in a single pen gets that pen on the sale.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Result, error) {
	sl := &Sale{
		ID:          id.New(),
		LotID:       in.LotID,
		PenID:       in.PenID,
		BuyerID:     in.BuyerID,
		SaleDate:    in.SaleDate.UTC(),
		Quantity:    in.Quantity,
		TotalWeight: in.TotalWeight,
		PricePerKg:  in.PricePerKg,
		Status:      StatusConfirmed,
		CreatedBy:   appctx.GetUserID(ctx),
		CreatedAt:   s.now(),
	}
	if in.GrossValue != nil {
		sl.GrossValue = types.RoundMoney(*in.GrossValue)
	} else {
		sl.GrossValue = types.RoundMoney(in.TotalWeight.Mul(in.PricePerKg))
	}
	if err := sl.Validate(ctx); err != nil {
		return nil, err
	}

	res := &Result{Sale: sl}
	var moves []pen.Move
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		l, _, err := s.lots.AdjustQuantity(ctx, in.LotID, -in.Quantity, false)
		if err != nil {
			return err
		}
		if l.Status == lot.StatusClosed {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule, "lot is closed").WithDetail("lot_id", in.LotID)
		}
		if err := s.lots.MarkSold(ctx, l); err != nil {
			return fmt.Errorf("mark lot sold: %w", err)
		}
		moves, err = s.movesOut(ctx, sl)
		if err != nil {
			return err
		}
		if err := s.placements.Withdraw(ctx, sl.LotID, moves, sl.SaleDate); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, sl); err != nil {
			return fmt.Errorf("create sale: %w", err)
		}
		if err := s.marker.MarkDirty(ctx, "sale_registered", types.MonthOf(sl.SaleDate)); err != nil {
			return err
		}

		if in.RecordRevenue && s.revenue != nil && sl.GrossValue.IsPositive() {
			saleID, lotID := sl.ID, sl.LotID
			rec, err := s.revenue.Create(ctx, ledger.CreateInput{
				Kind:           ledger.KindRevenue,
				Category:       category.CattleSale,
				Description:    "Venda de gado - Lote " + l.Code,
				Amount:         sl.GrossValue,
				CompetenceDate: sl.SaleDate,
				DueDate:        sl.SaleDate,
				LotID:          &lotID,
				SaleID:         &saleID,
				PartnerID:      sl.BuyerID,
			})
			if err != nil {
				return fmt.Errorf("record sale revenue: %w", err)
			}
			res.Revenue = rec
		}

		logger.Info(ctx, "sale registered",
			"sale_id", sl.ID,
			"lot_id", sl.LotID,
			"quantity", sl.Quantity,
			"gross_value", sl.GrossValue,
			"remaining", l.CurrentQuantity,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	penIDs := make([]id.ID, 0, len(moves))
	for _, m := range moves {
		penIDs = append(penIDs, m.PenID)
	}
	s.placements.Refresh(ctx, penIDs, sl.SaleDate)
	return res, nil
}

// movesOut resolves the pens the sold heads leave: the sale's pen when given,
// else the lot's placements at the sale date.
func (s *Service) movesOut(ctx context.Context, sl *Sale) ([]pen.Move, error) {
	if sl.PenID != nil {
		return []pen.Move{{PenID: *sl.PenID, Quantity: sl.Quantity}}, nil
	}
	occ, err := s.placements.Occupancy(ctx, sl.SaleDate, sl.SaleDate.Add(time.Nanosecond))
	if err != nil {
		return nil, fmt.Errorf("load placements: %w", err)
	}
	moves := occ.Spread(sl.LotID, sl.Quantity, sl.SaleDate)
	if len(moves) == 1 {
		penID := moves[0].PenID
		sl.PenID = &penID
	}
	return moves, nil
}

// Get returns a sale.
func (s *Service) Get(ctx context.Context, saleID id.ID) (*Sale, error) {
	return s.repo.Get(ctx, saleID)
}

// SaleDate implements ledger.SaleDates.
func (s *Service) SaleDate(ctx context.Context, saleID id.ID) (time.Time, error) {
	sl, err := s.repo.Get(ctx, saleID)
	if err != nil {
		return time.Time{}, err
	}
	return sl.SaleDate, nil
}

// List returns sales matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Sale, error) {
	return s.repo.List(ctx, f)
}
