// Package pen provides physical pens and the lot-pen occupancy used for scope resolution.
package pen

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/entity"
	"boigordo/internal/core/id"
)

// Pen is a physical enclosure.
type Pen struct {
	entity.BaseEntity

	Code     string `db:"code" json:"code"`
	Capacity int    `db:"capacity" json:"capacity"`
	Active   bool   `db:"active" json:"active"`
}

// Validate checks pen invariants.
func (p *Pen) Validate(_ context.Context) error {
	if strings.TrimSpace(p.Code) == "" {
		return apperror.NewValidation("code is required")
	}
	if p.Capacity <= 0 {
		return apperror.NewValidation("capacity must be positive")
	}
	return nil
}

// LinkStatus is the state of a lot placement.
type LinkStatus string

const (
	LinkActive   LinkStatus = "ACTIVE"
	LinkReleased LinkStatus = "RELEASED"
)

// Link places part of a lot in a pen for a time range.
type Link struct {
	ID          id.ID      `db:"id" json:"id"`
	LotID       id.ID      `db:"lot_id" json:"lotId"`
	PenID       id.ID      `db:"pen_id" json:"penId"`
	Quantity    int        `db:"quantity" json:"quantity"`
	AllocatedAt time.Time  `db:"allocated_at" json:"allocatedAt"`
	ReleasedAt  *time.Time `db:"released_at" json:"releasedAt,omitempty"`
	Status      LinkStatus `db:"status" json:"status"`
}

// ActiveAt reports whether the placement was in effect at t.
func (l Link) ActiveAt(t time.Time) bool {
	if t.Before(l.AllocatedAt) {
		return false
	}
	return l.ReleasedAt == nil || t.Before(*l.ReleasedAt)
}

// Occupancy is a read-only view over placements.
type Occupancy struct {
	links []Link
}

// NewOccupancy builds an occupancy view.
func NewOccupancy(links []Link) *Occupancy {
	return &Occupancy{links: links}
}

// ActiveIn returns placements in pen at t.
func (o *Occupancy) ActiveIn(penID id.ID, at time.Time) []Link {
	var out []Link
	for _, l := range o.links {
		if l.PenID == penID && l.ActiveAt(at) && l.Quantity > 0 {
			out = append(out, l)
		}
	}
	return out
}

// HeadsIn returns the number of heads in pen at t.
func (o *Occupancy) HeadsIn(penID id.ID, at time.Time) int {
	total := 0
	for _, l := range o.ActiveIn(penID, at) {
		total += l.Quantity
	}
	return total
}

// LotShareOfPen is the fraction of the pen's heads that belong to lot at t.
func (o *Occupancy) LotShareOfPen(lotID, penID id.ID, at time.Time) decimal.Decimal {
	total, mine := 0, 0
	for _, l := range o.ActiveIn(penID, at) {
		total += l.Quantity
		if l.LotID == lotID {
			mine += l.Quantity
		}
	}
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(mine)).Div(decimal.NewFromInt(int64(total)))
}

// PenShareOfLot is the fraction of the lot's placed heads that sit in pen at t.
func (o *Occupancy) PenShareOfLot(lotID, penID id.ID, at time.Time) decimal.Decimal {
	total, inPen := 0, 0
	for _, l := range o.links {
		if l.LotID != lotID || !l.ActiveAt(at) {
			continue
		}
		total += l.Quantity
		if l.PenID == penID {
			inPen += l.Quantity
		}
	}
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(inPen)).Div(decimal.NewFromInt(int64(total)))
}

// PenShareOfLotBefore is PenShareOfLot over the placements in effect just
// before at. Heads that died or were sold at at are counted where they stood.
// A lot first placed at at falls back to the share at at.
func (o *Occupancy) PenShareOfLotBefore(lotID, penID id.ID, at time.Time) decimal.Decimal {
	total, inPen := 0, 0
	for _, l := range o.links {
		if l.LotID != lotID || !l.AllocatedAt.Before(at) {
			continue
		}
		if l.ReleasedAt != nil && l.ReleasedAt.Before(at) {
			continue
		}
		total += l.Quantity
		if l.PenID == penID {
			inPen += l.Quantity
		}
	}
	if total == 0 {
		return o.PenShareOfLot(lotID, penID, at)
	}
	return decimal.NewFromInt(int64(inPen)).Div(decimal.NewFromInt(int64(total)))
}

// PensOf lists the pens the lot was ever placed in within the loaded window.
func (o *Occupancy) PensOf(lotID id.ID) []id.ID {
	seen := make(map[id.ID]struct{})
	var out []id.ID
	for _, l := range o.links {
		if l.LotID != lotID {
			continue
		}
		if _, ok := seen[l.PenID]; !ok {
			seen[l.PenID] = struct{}{}
			out = append(out, l.PenID)
		}
	}
	return out
}

// LotsIn lists the lots ever placed in the pen within the loaded window.
func (o *Occupancy) LotsIn(penID id.ID) []id.ID {
	seen := make(map[id.ID]struct{})
	var out []id.ID
	for _, l := range o.links {
		if l.PenID != penID {
			continue
		}
		if _, ok := seen[l.LotID]; !ok {
			seen[l.LotID] = struct{}{}
			out = append(out, l.LotID)
		}
	}
	return out
}

// Move is a number of heads of a lot that left or entered one pen.
type Move struct {
	PenID    id.ID `json:"penId"`
	Quantity int   `json:"quantity"`
}

// Portion is a share of a pen-level quantity assigned to one lot.
type Portion struct {
	LotID    id.ID
	Quantity int
}

// Distribute splits quantity across the lots in pen at t in proportion to their
// heads, using largest remainder so the portions add up exactly.
func (o *Occupancy) Distribute(penID id.ID, quantity int, at time.Time) []Portion {
	byLot := make(map[id.ID]int)
	var order []id.ID
	for _, l := range o.ActiveIn(penID, at) {
		if _, seen := byLot[l.LotID]; !seen {
			order = append(order, l.LotID)
		}
		byLot[l.LotID] += l.Quantity
	}
	split := apportion(quantity, order, byLot)
	out := make([]Portion, 0, len(split))
	for _, lotID := range order {
		if n := split[lotID]; n > 0 {
			out = append(out, Portion{LotID: lotID, Quantity: n})
		}
	}
	return out
}

// Spread splits quantity heads of a lot across the pens holding it at t, in
// proportion to its heads in each pen. No more than the placed heads are spread.
func (o *Occupancy) Spread(lotID id.ID, quantity int, at time.Time) []Move {
	return o.spread(lotID, quantity, func(l Link) bool { return l.ActiveAt(at) })
}

// SpreadBefore is Spread over the placements in effect just before at.
func (o *Occupancy) SpreadBefore(lotID id.ID, quantity int, at time.Time) []Move {
	return o.spread(lotID, quantity, func(l Link) bool {
		return l.AllocatedAt.Before(at) && (l.ReleasedAt == nil || !l.ReleasedAt.Before(at))
	})
}

func (o *Occupancy) spread(lotID id.ID, quantity int, in func(Link) bool) []Move {
	byPen := make(map[id.ID]int)
	var order []id.ID
	placed := 0
	for _, l := range o.links {
		if l.LotID != lotID || l.Quantity <= 0 || !in(l) {
			continue
		}
		if _, seen := byPen[l.PenID]; !seen {
			order = append(order, l.PenID)
		}
		byPen[l.PenID] += l.Quantity
		placed += l.Quantity
	}
	split := apportion(min(quantity, placed), order, byPen)
	out := make([]Move, 0, len(split))
	for _, penID := range order {
		if n := split[penID]; n > 0 {
			out = append(out, Move{PenID: penID, Quantity: n})
		}
	}
	return out
}

// apportion divides quantity over keys by weight with the largest remainder method.
func apportion(quantity int, keys []id.ID, weights map[id.ID]int) map[id.ID]int {
	total := 0
	for _, k := range keys {
		total += weights[k]
	}
	if total == 0 || quantity <= 0 {
		return nil
	}

	type share struct {
		key       id.ID
		base      int
		remainder int
	}
	shares := make([]share, 0, len(keys))
	assigned := 0
	for _, k := range keys {
		n := quantity * weights[k]
		shares = append(shares, share{key: k, base: n / total, remainder: n % total})
		assigned += n / total
	}
	sort.SliceStable(shares, func(i, j int) bool { return shares[i].remainder > shares[j].remainder })
	for i := 0; assigned < quantity; i++ {
		shares[i%len(shares)].base++
		assigned++
	}

	out := make(map[id.ID]int, len(shares))
	for _, sh := range shares {
		out[sh.key] = sh.base
	}
	return out
}
