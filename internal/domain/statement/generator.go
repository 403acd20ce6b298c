package statement

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
	"boigordo/internal/domain/sale"
	"boigordo/internal/domain/scope"
)

// Inputs are everything a month's statement is derived from.
type Inputs struct {
	Month     types.Month
	Scope     scope.Scope
	Allocated []ledger.Allocated
	Sales     []sale.Sale
	Lots      map[id.ID]*lot.Lot
	Mortality types.Money
	Occupancy *pen.Occupancy
	Mappings  category.Resolver
	At        time.Time
}

// Compute derives the statement. Revenue, deductions and expenses come from
// allocations weighted to the scope and recognized in the month; costs are
// recognized at disposal as cost per head × sold quantity.
func Compute(in Inputs) *Statement {
	st := &Statement{
		ID:                  id.New(),
		ReferenceMonth:      in.Month.Time,
		ScopeType:           in.Scope.Type,
		ScopeID:             in.Scope.ID,
		GrossRevenue:        decimal.Zero,
		SalesDeductions:     decimal.Zero,
		MortalityDeductions: types.RoundMoney(in.Mortality),
		TotalCosts:          decimal.Zero,
		TotalExpenses:       decimal.Zero,
		Status:              StatusComplete,
		GeneratedAt:         in.At,
		Version:             1,
	}
	reasons := make(map[string]struct{})

	for _, it := range in.Allocated {
		rec := it.Record
		if rec.DeletionMark || !in.Month.Contains(it.RecognizedAt) {
			continue
		}
		w := AllocationWeight(it.Allocation, in.Scope, rec.CompetenceDate, in.Occupancy)
		if w.IsZero() {
			continue
		}
		m, ok := in.Mappings.Resolve(rec.Category, rec.CompetenceDate, rec.Subject())
		if !ok {
			reasons[fmt.Sprintf("unmapped category %q at %s", rec.Category, rec.CompetenceDate.Format(time.DateOnly))] = struct{}{}
			continue
		}
		amount := it.Allocation.Amount.Mul(w)
		switch m.Line {
		case category.LineRevenue:
			st.GrossRevenue = st.GrossRevenue.Add(amount)
		case category.LineSalesDeduction:
			st.SalesDeductions = st.SalesDeductions.Add(amount)
		case category.LineExpense:
			st.TotalExpenses = st.TotalExpenses.Add(amount)
		case category.LineCost:
			// Lot and pen costs reach the statement through sales; company-wide
			// cost records have no lot to be recognized with.
			if it.Allocation.TargetType == allocation.TargetGlobal {
				st.TotalExpenses = st.TotalExpenses.Add(amount)
			}
		}
	}

	for _, sl := range in.Sales {
		if !in.Month.Contains(sl.SaleDate) {
			continue
		}
		w := SaleWeight(sl, in.Scope, in.Occupancy)
		if w.IsZero() {
			continue
		}
		l, ok := in.Lots[sl.LotID]
		switch {
		case !ok:
			reasons[fmt.Sprintf("sale %s references unknown lot %s", sl.ID, sl.LotID)] = struct{}{}
			continue
		case l.CostSnapshotID == nil:
			reasons[fmt.Sprintf("lot %s has no cost snapshot", l.Code)] = struct{}{}
			continue
		case l.HeadCount <= 0:
			reasons[fmt.Sprintf("lot %s has zero head count", l.Code)] = struct{}{}
			continue
		}
		qty := decimal.NewFromInt(int64(sl.Quantity)).Mul(w)
		st.TotalCosts = st.TotalCosts.Add(l.CostPerHead.Mul(qty))
		st.SoldHeads += int(qty.Round(0).IntPart())
	}

	st.GrossRevenue = types.RoundMoney(st.GrossRevenue)
	st.SalesDeductions = types.RoundMoney(st.SalesDeductions)
	st.TotalCosts = types.RoundMoney(st.TotalCosts)
	st.TotalExpenses = types.RoundMoney(st.TotalExpenses)
	st.Deductions = st.SalesDeductions.Add(st.MortalityDeductions)
	st.NetRevenue = st.GrossRevenue.Sub(st.Deductions)
	st.GrossProfit = st.NetRevenue.Sub(st.TotalCosts)
	st.NetProfit = st.GrossProfit.Sub(st.TotalExpenses)

	if len(reasons) > 0 {
		st.Status = StatusIncomplete
		for r := range reasons {
			st.Reasons = append(st.Reasons, r)
		}
		sort.Strings(st.Reasons)
	}
	return st
}

// AllocationWeight is the fraction of an allocation that belongs to sc at date at.
// GLOBAL takes every allocation in full. A LOT scope takes its LOT allocations and
// its share of PEN allocations; a PEN scope takes its PEN allocations and the
// pen's share of LOT allocations. GLOBAL allocations belong to GLOBAL only.
func AllocationWeight(a allocation.Allocation, sc scope.Scope, at time.Time, occ *pen.Occupancy) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if sc.IsGlobal() {
		return one
	}
	if sc.ID == nil || a.TargetID == nil {
		return decimal.Zero
	}
	target := *a.TargetID
	switch {
	case sc.Type == scope.TypeLot && a.TargetType == allocation.TargetLot:
		if target == *sc.ID {
			return one
		}
	case sc.Type == scope.TypeLot && a.TargetType == allocation.TargetPen:
		if occ != nil {
			return occ.LotShareOfPen(*sc.ID, target, at)
		}
	case sc.Type == scope.TypePen && a.TargetType == allocation.TargetPen:
		if target == *sc.ID {
			return one
		}
	case sc.Type == scope.TypePen && a.TargetType == allocation.TargetLot:
		if occ != nil {
			return occ.PenShareOfLot(target, *sc.ID, at)
		}
	}
	return decimal.Zero
}

// SaleWeight is the fraction of a sale that belongs to sc.
func SaleWeight(sl sale.Sale, sc scope.Scope, occ *pen.Occupancy) decimal.Decimal {
	one := decimal.NewFromInt(1)
	switch sc.Type {
	case scope.TypeGlobal:
		return one
	case scope.TypeLot:
		if sc.Is(scope.TypeLot, sl.LotID) {
			return one
		}
	case scope.TypePen:
		if sl.PenID != nil {
			if sc.Is(scope.TypePen, *sl.PenID) {
				return one
			}
			return decimal.Zero
		}
		if occ != nil && sc.ID != nil {
			return occ.PenShareOfLotBefore(sl.LotID, *sc.ID, sl.SaleDate)
		}
	}
	return decimal.Zero
}
