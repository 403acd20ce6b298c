package pen

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/entity"
	"boigordo/internal/core/id"
	"boigordo/internal/core/tx"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/lot"
	"boigordo/internal/domain/period"
	"boigordo/pkg/logger"
)

// LotReader is the part of the lot service pens need.
type LotReader interface {
	Get(ctx context.Context, lotID id.ID) (*lot.Lot, error)
}

// Service provides pen and placement operations.
type Service struct {
	repo       Repository
	lots       LotReader
	tx         tx.Manager
	marker     period.Marker
	recomputer lot.CostRecomputer
	now        func() time.Time
}

// NewService creates a pen service.
func NewService(repo Repository, lots LotReader, txm tx.Manager, marker period.Marker) *Service {
	return &Service{
		repo:   repo,
		lots:   lots,
		tx:     txm,
		marker: marker,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetRecomputer wires the lot cost recompute run after placements change.
func (s *Service) SetRecomputer(r lot.CostRecomputer) {
	s.recomputer = r
}

// Create registers a pen.
func (s *Service) Create(ctx context.Context, code string, capacity int) (*Pen, error) {
	p := &Pen{BaseEntity: entity.NewBaseEntity(), Code: code, Capacity: capacity, Active: true}
	if err := p.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create pen: %w", err)
	}
	return p, nil
}

// Get returns a pen.
func (s *Service) Get(ctx context.Context, penID id.ID) (*Pen, error) {
	return s.repo.Get(ctx, penID)
}

// List returns all pens.
func (s *Service) List(ctx context.Context) ([]Pen, error) {
	return s.repo.List(ctx)
}

// Exists reports whether the pen exists.
func (s *Service) Exists(ctx context.Context, penID id.ID) (bool, error) {
	return s.repo.Exists(ctx, penID)
}

// Place moves quantity heads of a lot into a pen at a date.
func (s *Service) Place(ctx context.Context, penID, lotID id.ID, quantity int, at time.Time) (*Link, error) {
	if quantity <= 0 {
		return nil, apperror.NewValidation("quantity must be positive")
	}
	at = at.UTC()

	var link *Link
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.repo.Get(ctx, penID)
		if err != nil {
			return err
		}
		if !p.Active {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule, "pen is not active")
		}
		l, err := s.lots.Get(ctx, lotID)
		if err != nil {
			return err
		}
		if !l.IsOpen() {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule, "lot is sold or closed")
		}

		occ, err := s.Occupancy(ctx, at, at.Add(time.Nanosecond))
		if err != nil {
			return err
		}
		if occ.HeadsIn(penID, at)+quantity > p.Capacity {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule, "pen capacity exceeded").
				WithDetail("capacity", p.Capacity).
				WithDetail("occupied", occ.HeadsIn(penID, at))
		}
		placed := 0
		for _, existing := range occ.links {
			if existing.LotID == lotID && existing.ActiveAt(at) {
				placed += existing.Quantity
			}
		}
		if placed+quantity > l.CurrentQuantity {
			return apperror.NewInsufficientQuantity(lotID.String(), placed+quantity, l.CurrentQuantity)
		}

		link = &Link{
			ID:          id.New(),
			LotID:       lotID,
			PenID:       penID,
			Quantity:    quantity,
			AllocatedAt: at,
			Status:      LinkActive,
		}
		if err := s.repo.CreateLink(ctx, link); err != nil {
			return err
		}
		return s.marker.MarkDirty(ctx, "lot_placed", s.monthsFrom(at)...)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "lot placed in pen", "pen_id", penID, "lot_id", lotID, "quantity", quantity)
	s.Refresh(ctx, []id.ID{penID}, at)
	return link, nil
}

// Release ends a placement.
func (s *Service) Release(ctx context.Context, linkID id.ID, at time.Time) error {
	at = at.UTC()
	var link *Link
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		link, err = s.repo.GetLink(ctx, linkID)
		if err != nil {
			return err
		}
		if link.Status == LinkReleased {
			link = nil
			return nil
		}
		if at.Before(link.AllocatedAt) {
			return apperror.NewValidation("release date precedes allocation")
		}
		if err := s.repo.ReleaseLink(ctx, linkID, at); err != nil {
			return err
		}
		return s.marker.MarkDirty(ctx, "lot_released", s.monthsFrom(at)...)
	})
	if err != nil || link == nil {
		return err
	}

	logger.Info(ctx, "placement released", "link_id", linkID, "pen_id", link.PenID, "lot_id", link.LotID)
	s.Refresh(ctx, []id.ID{link.PenID}, at)
	return nil
}

// Withdraw takes heads of a lot out of pens at a date, for deaths and sales.
// A placement in effect at the date is closed there and the remaining heads
// continue in a new placement, so occupancy before the date is unchanged.
// Placements of the lot starting after the date lose the same heads.
func (s *Service) Withdraw(ctx context.Context, lotID id.ID, moves []Move, at time.Time) error {
	return s.resize(ctx, lotID, moves, at.UTC(), -1, "placement_withdrawn")
}

// Restore puts heads taken by Withdraw back into their pens from the same date.
func (s *Service) Restore(ctx context.Context, lotID id.ID, moves []Move, at time.Time) error {
	return s.resize(ctx, lotID, moves, at.UTC(), 1, "placement_restored")
}

func (s *Service) resize(ctx context.Context, lotID id.ID, moves []Move, at time.Time, sign int, reason string) error {
	if len(moves) == 0 {
		return nil
	}
	return s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		links, err := s.repo.LotLinks(ctx, lotID, at)
		if err != nil {
			return fmt.Errorf("load placements: %w", err)
		}
		for _, m := range moves {
			if m.Quantity <= 0 {
				continue
			}
			var inPen []Link
			for _, l := range links {
				if l.PenID == m.PenID {
					inPen = append(inPen, l)
				}
			}
			if sign < 0 {
				err = s.withdraw(ctx, lotID, inPen, m, at)
			} else {
				err = s.restore(ctx, lotID, inPen, m, at)
			}
			if err != nil {
				return err
			}
		}
		return s.marker.MarkDirty(ctx, reason, s.monthsFrom(at)...)
	})
}

func (s *Service) withdraw(ctx context.Context, lotID id.ID, links []Link, m Move, at time.Time) error {
	remaining := m.Quantity
	for i := range links {
		l := &links[i]
		if remaining == 0 || !l.ActiveAt(at) {
			continue
		}
		take := min(l.Quantity, remaining)
		if err := s.split(ctx, l, l.Quantity-take, at); err != nil {
			return err
		}
		remaining -= take
	}
	if remaining > 0 {
		return apperror.NewInsufficientQuantity(lotID.String(), m.Quantity, m.Quantity-remaining).
			WithDetail("pen_id", m.PenID)
	}

	for _, group := range laterGroups(links, at) {
		remaining := m.Quantity
		for _, l := range group {
			if remaining == 0 {
				break
			}
			take := min(l.Quantity, remaining)
			remaining -= take
			if take == l.Quantity {
				start := l.AllocatedAt
				l.ReleasedAt, l.Status = &start, LinkReleased
			} else {
				l.Quantity -= take
			}
			if err := s.repo.UpdateLink(ctx, l); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) restore(ctx context.Context, lotID id.ID, links []Link, m Move, at time.Time) error {
	later := laterGroups(links, at)
	restored := false
	for i := range links {
		if l := &links[i]; l.ActiveAt(at) {
			if err := s.split(ctx, l, l.Quantity+m.Quantity, at); err != nil {
				return err
			}
			restored = true
			break
		}
	}
	if !restored {
		tail := &Link{ID: id.New(), LotID: lotID, PenID: m.PenID, Quantity: m.Quantity, AllocatedAt: at, Status: LinkActive}
		if len(later) > 0 {
			end := later[0][0].AllocatedAt
			tail.ReleasedAt, tail.Status = &end, LinkReleased
		}
		if err := s.repo.CreateLink(ctx, tail); err != nil {
			return err
		}
	}

	for _, group := range later {
		l := group[0]
		l.Quantity += m.Quantity
		if err := s.repo.UpdateLink(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

// split gives l quantity heads from at onward. A placement starting before at
// is closed at at and continued by a new one.
func (s *Service) split(ctx context.Context, l *Link, quantity int, at time.Time) error {
	if quantity == l.Quantity {
		return nil
	}
	if l.AllocatedAt.Equal(at) {
		if quantity == 0 {
			l.ReleasedAt, l.Status = &at, LinkReleased
		} else {
			l.Quantity = quantity
		}
		return s.repo.UpdateLink(ctx, l)
	}

	tail := &Link{
		ID:          id.New(),
		LotID:       l.LotID,
		PenID:       l.PenID,
		Quantity:    quantity,
		AllocatedAt: at,
		ReleasedAt:  l.ReleasedAt,
		Status:      l.Status,
	}
	l.ReleasedAt, l.Status = &at, LinkReleased
	if err := s.repo.UpdateLink(ctx, l); err != nil {
		return err
	}
	if quantity == 0 {
		return nil
	}
	return s.repo.CreateLink(ctx, tail)
}

// laterGroups groups the live placements starting after at by start date.
func laterGroups(links []Link, at time.Time) [][]*Link {
	var out [][]*Link
	for i := range links {
		l := &links[i]
		if !l.AllocatedAt.After(at) || (l.ReleasedAt != nil && !l.ReleasedAt.After(l.AllocatedAt)) {
			continue
		}
		if n := len(out); n > 0 && out[n-1][0].AllocatedAt.Equal(l.AllocatedAt) {
			out[n-1] = append(out[n-1], l)
			continue
		}
		out = append(out, []*Link{l})
	}
	return out
}

// Refresh recomputes the cost of every lot placed in the pens from at onward.
// It runs after the placement change is committed; failures are logged and
// left to the nightly recompute.
func (s *Service) Refresh(ctx context.Context, penIDs []id.ID, at time.Time) {
	if s.recomputer == nil || len(penIDs) == 0 {
		return
	}
	occ, err := s.Occupancy(ctx, at.Add(-time.Nanosecond), time.Time{})
	if err != nil {
		logger.Warn(ctx, "load placements for lot refresh", "error", err)
		return
	}
	seen := make(map[id.ID]struct{})
	for _, penID := range penIDs {
		for _, lotID := range occ.LotsIn(penID) {
			if _, ok := seen[lotID]; ok {
				continue
			}
			seen[lotID] = struct{}{}
			if err := s.recomputer.Recompute(ctx, lotID); err != nil {
				logger.Warn(ctx, "lot cost refresh failed", "lot_id", lotID, "pen_id", penID, "error", err)
			}
		}
	}
}

func (s *Service) monthsFrom(at time.Time) []types.Month {
	if months := types.MonthsBetween(types.MonthOf(at), types.MonthOf(s.now())); len(months) > 0 {
		return months
	}
	return []types.Month{types.MonthOf(at)}
}

// Occupancy loads placements overlapping [from, to).
func (s *Service) Occupancy(ctx context.Context, from, to time.Time) (*Occupancy, error) {
	links, err := s.repo.Links(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load placements: %w", err)
	}
	return NewOccupancy(links), nil
}

// AverageCost is Σ(lot cost per head × heads in pen) / heads in pen at a date.
type AverageCost struct {
	PenID       id.ID       `json:"penId"`
	At          time.Time   `json:"at"`
	Heads       int         `json:"heads"`
	CostPerHead types.Money `json:"costPerHead"`
	TotalCost   types.Money `json:"totalCost"`
}

// AverageCostPerHead weights each lot's latest cost per head by its heads in the pen.
func (s *Service) AverageCostPerHead(ctx context.Context, penID id.ID, at time.Time) (*AverageCost, error) {
	if _, err := s.repo.Get(ctx, penID); err != nil {
		return nil, err
	}
	occ, err := s.Occupancy(ctx, at, at.Add(time.Nanosecond))
	if err != nil {
		return nil, err
	}

	out := &AverageCost{PenID: penID, At: at, CostPerHead: decimal.Zero, TotalCost: decimal.Zero}
	for _, link := range occ.ActiveIn(penID, at) {
		l, err := s.lots.Get(ctx, link.LotID)
		if err != nil {
			return nil, err
		}
		out.Heads += link.Quantity
		out.TotalCost = out.TotalCost.Add(l.CostPerHead.Mul(decimal.NewFromInt(int64(link.Quantity))))
	}
	out.TotalCost = types.RoundMoney(out.TotalCost)
	if out.Heads > 0 {
		out.CostPerHead = types.RoundMoney(out.TotalCost.Div(decimal.NewFromInt(int64(out.Heads))))
	}
	return out, nil
}
