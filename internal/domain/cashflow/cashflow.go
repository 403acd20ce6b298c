// Package cashflow keeps realized cash movements, one per settled record, and
// summarizes them by activity for the cash-flow statement (DFC).
package cashflow

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/category"
	"boigordo/internal/domain/ledger"
	"boigordo/pkg/logger"
)

// Entry is the realized movement of one settled record. Inflows are positive.
type Entry struct {
	ID        id.ID              `db:"id" json:"id"`
	RecordID  id.ID              `db:"record_id" json:"recordId"`
	Kind      ledger.Kind        `db:"kind" json:"kind"`
	Category  category.Code      `db:"category" json:"category"`
	Amount    types.Money        `db:"amount" json:"amount"`
	Date      time.Time          `db:"entry_date" json:"date"`
	AccountID *id.ID             `db:"account_id" json:"accountId,omitempty"`
	Section   category.Section   `db:"section" json:"section"`
	Direction category.Direction `db:"direction" json:"direction"`
	CreatedAt time.Time          `db:"created_at" json:"createdAt"`
}

// Repository persists entries.
type Repository interface {
	// Insert stores e unless an entry for the same record exists. It reports
	// whether a row was written.
	Insert(ctx context.Context, e *Entry) (bool, error)
	List(ctx context.Context, from, to time.Time) ([]Entry, error)
}

// MappingSource provides the current category table.
type MappingSource interface {
	Table(ctx context.Context) (*category.Table, error)
}

// Service records and summarizes cash movements.
type Service struct {
	repo     Repository
	mappings MappingSource
	now      func() time.Time
}

// NewService creates a cash-flow service.
func NewService(repo Repository, mappings MappingSource) *Service {
	return &Service{repo: repo, mappings: mappings, now: func() time.Time { return time.Now().UTC() }}
}

// RecordSettlement implements ledger.CashFlowRecorder. It is safe to call more
// than once for a record.
func (s *Service) RecordSettlement(ctx context.Context, r *ledger.Record) error {
	table, err := s.mappings.Table(ctx)
	if err != nil {
		return fmt.Errorf("load category mappings: %w", err)
	}

	section, direction := category.SectionOperating, category.DirectionOutflow
	if r.Kind == ledger.KindRevenue {
		direction = category.DirectionInflow
	}
	if m, ok := table.Resolve(r.Category, r.CompetenceDate, r.Subject()); ok {
		section, direction = m.Section, m.Direction
	}

	amount := r.Amount
	if direction == category.DirectionOutflow {
		amount = amount.Neg()
	}
	date := r.DueDate
	if r.SettledAt != nil {
		date = *r.SettledAt
	}

	e := &Entry{
		ID:        id.New(),
		RecordID:  r.ID,
		Kind:      r.Kind,
		Category:  r.Category,
		Amount:    amount,
		Date:      date,
		AccountID: r.PayerAccountID,
		Section:   section,
		Direction: direction,
		CreatedAt: s.now(),
	}
	written, err := s.repo.Insert(ctx, e)
	if err != nil {
		return fmt.Errorf("insert cash flow entry: %w", err)
	}
	if written {
		logger.Debug(ctx, "cash flow entry recorded", "record_id", r.ID, "amount", amount, "section", section)
	}
	return nil
}

// SectionTotal is one activity of the summary.
type SectionTotal struct {
	Section  category.Section `json:"section"`
	Inflows  types.Money      `json:"inflows"`
	Outflows types.Money      `json:"outflows"`
	Net      types.Money      `json:"net"`
}

// Summary is the DFC of a month.
type Summary struct {
	Month    string         `json:"month"`
	Sections []SectionTotal `json:"sections"`
	Net      types.Money    `json:"net"`
	Entries  int            `json:"entries"`
}

var sectionOrder = []category.Section{category.SectionOperating, category.SectionInvesting, category.SectionFinancing}

// Summarize groups entries by section and direction.
func Summarize(month types.Month, entries []Entry) *Summary {
	totals := make(map[category.Section]*SectionTotal, len(sectionOrder))
	for _, sec := range sectionOrder {
		totals[sec] = &SectionTotal{Section: sec, Inflows: decimal.Zero, Outflows: decimal.Zero, Net: decimal.Zero}
	}
	out := &Summary{Month: month.String(), Net: decimal.Zero, Entries: len(entries)}
	for _, e := range entries {
		t, ok := totals[e.Section]
		if !ok {
			continue
		}
		if e.Amount.IsPositive() {
			t.Inflows = t.Inflows.Add(e.Amount)
		} else {
			t.Outflows = t.Outflows.Add(e.Amount.Abs())
		}
		t.Net = t.Net.Add(e.Amount)
		out.Net = out.Net.Add(e.Amount)
	}
	for _, sec := range sectionOrder {
		out.Sections = append(out.Sections, *totals[sec])
	}
	return out
}

// Summary returns the DFC of month.
func (s *Service) Summary(ctx context.Context, month types.Month) (*Summary, error) {
	entries, err := s.repo.List(ctx, month.Time, month.End())
	if err != nil {
		return nil, fmt.Errorf("list cash flow entries: %w", err)
	}
	return Summarize(month, entries), nil
}
