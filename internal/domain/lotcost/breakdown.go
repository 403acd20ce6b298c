// Package lotcost derives a lot's cost breakdown from the ledger. Totals are
// never accumulated: every recompute rebuilds the breakdown from the live
// records and swaps it in as a new snapshot.
package lotcost

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/allocation"
	"boigordo/internal/domain/category"
	"boigordo/internal/domain/ledger"
	"boigordo/internal/domain/lot"
	"boigordo/internal/domain/pen"
)

// Status tells whether every input could be classified.
type Status string

const (
	StatusComplete   Status = "COMPLETE"
	StatusIncomplete Status = "INCOMPLETE"
)

// Breakdown is a lot's cost split into buckets. Persisted as a snapshot.
type Breakdown struct {
	ID          id.ID       `db:"id" json:"id"`
	LotID       id.ID       `db:"lot_id" json:"lotId"`
	HeadCount   int         `db:"head_count" json:"headCount"`
	Acquisition types.Money `db:"acquisition" json:"acquisition"`
	Freight     types.Money `db:"freight" json:"freight"`
	Commission  types.Money `db:"commission" json:"commission"`
	Health      types.Money `db:"health" json:"health"`
	Feed        types.Money `db:"feed" json:"feed"`
	Operational types.Money `db:"operational" json:"operational"`
	Other       types.Money `db:"other" json:"other"`
	Total       types.Money `db:"total" json:"total"`
	CostPerHead types.Money `db:"cost_per_head" json:"costPerHead"`
	RecordCount int         `db:"record_count" json:"recordCount"`
	Status      Status      `db:"status" json:"status"`
	Reasons     []string    `db:"incomplete_reasons" json:"incompleteReasons,omitempty"`
	ComputedAt  time.Time   `db:"computed_at" json:"computedAt"`
}

// Bucket returns the subtotal of b.
func (b *Breakdown) Bucket(bucket category.CostBucket) types.Money {
	if p := b.slot(bucket); p != nil {
		return *p
	}
	return decimal.Zero
}

func (b *Breakdown) slot(bucket category.CostBucket) *types.Money {
	switch bucket {
	case category.BucketAcquisition:
		return &b.Acquisition
	case category.BucketFreight:
		return &b.Freight
	case category.BucketCommission:
		return &b.Commission
	case category.BucketHealth:
		return &b.Health
	case category.BucketFeed:
		return &b.Feed
	case category.BucketOperational:
		return &b.Operational
	case category.BucketOther:
		return &b.Other
	}
	return nil
}

// Options tune Compute.
type Options struct {
	// Retired buckets always report zero.
	Retired []category.CostBucket
	At      time.Time
}

func (o Options) retired(b category.CostBucket) bool {
	for _, r := range o.Retired {
		if r == b {
			return true
		}
	}
	return false
}

// Compute builds the breakdown of l from its allocated records. Records reach the
// lot through a LOT allocation, or through a PEN allocation weighted by the lot's
// share of the pen's heads on the record's competence date.
func Compute(l *lot.Lot, items []ledger.Allocated, mappings category.Resolver, occ *pen.Occupancy, opts Options) *Breakdown {
	b := &Breakdown{
		ID:          id.New(),
		LotID:       l.ID,
		HeadCount:   l.HeadCount,
		Acquisition: decimal.Zero,
		Freight:     decimal.Zero,
		Commission:  decimal.Zero,
		Health:      decimal.Zero,
		Feed:        decimal.Zero,
		Operational: decimal.Zero,
		Other:       decimal.Zero,
		Status:      StatusComplete,
		ComputedAt:  opts.At,
	}

	reasons := make(map[string]struct{})
	records := make(map[id.ID]struct{})

	for _, it := range items {
		rec := it.Record
		if rec.DeletionMark {
			continue
		}
		weight := lotWeight(l.ID, it.Allocation, rec.CompetenceDate, occ)
		if weight.IsZero() {
			continue
		}

		m, ok := mappings.Resolve(rec.Category, rec.CompetenceDate, rec.Subject())
		if !ok {
			reasons[fmt.Sprintf("unmapped category %q at %s", rec.Category, rec.CompetenceDate.Format(time.DateOnly))] = struct{}{}
			continue
		}
		if !m.IsLotCost() || rec.Kind != ledger.KindExpense {
			continue
		}
		records[rec.ID] = struct{}{}
		if m.Retired || opts.retired(m.Bucket) {
			continue
		}
		if p := b.slot(m.Bucket); p != nil {
			*p = p.Add(it.Allocation.Amount.Mul(weight))
		}
	}

	total := decimal.Zero
	for _, bucket := range category.CostBuckets {
		p := b.slot(bucket)
		if opts.retired(bucket) {
			*p = decimal.Zero
		}
		*p = types.RoundMoney(*p)
		total = total.Add(*p)
	}
	b.Total = total
	b.RecordCount = len(records)

	if l.HeadCount > 0 {
		b.CostPerHead = types.RoundMoney(total.Div(decimal.NewFromInt(int64(l.HeadCount))))
	} else {
		b.CostPerHead = decimal.Zero
		reasons["lot has zero head count"] = struct{}{}
	}

	if len(reasons) > 0 {
		b.Status = StatusIncomplete
		for r := range reasons {
			b.Reasons = append(b.Reasons, r)
		}
		sort.Strings(b.Reasons)
	}
	return b
}

func lotWeight(lotID id.ID, a allocation.Allocation, at time.Time, occ *pen.Occupancy) decimal.Decimal {
	switch a.TargetType {
	case allocation.TargetLot:
		if a.TargetID != nil && *a.TargetID == lotID {
			return decimal.NewFromInt(1)
		}
	case allocation.TargetPen:
		if a.TargetID != nil && occ != nil {
			return occ.LotShareOfPen(lotID, *a.TargetID, at)
		}
	}
	return decimal.Zero
}

// Drift compares a stored total with a fresh derivation.
type Drift struct {
	LotID      id.ID       `json:"lotId"`
	Stored     types.Money `json:"stored"`
	Derived    types.Money `json:"derived"`
	Difference types.Money `json:"difference"`
	InSync     bool        `json:"inSync"`
	CheckedAt  time.Time   `json:"checkedAt"`
}
