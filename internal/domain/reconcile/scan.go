// Package reconcile finds duplicate and orphan ledger records left behind by
// repeated or partially failed imports. Scanning never deletes; removal is an
// explicit, audited operator action.
package reconcile

import (
	"sort"
	"strings"
	"time"

	"boigordo/internal/core/id"
	"boigordo/internal/core/types"
	"boigordo/internal/domain/category"
	"boigordo/internal/domain/ledger"
)

// Window is the maximum distance between competence dates of duplicates.
const Window = 24 * time.Hour

// Item is the report view of a record.
type Item struct {
	ID             id.ID         `json:"id"`
	Number         string        `json:"number"`
	Category       category.Code `json:"category"`
	Description    string        `json:"description"`
	Amount         types.Money   `json:"amount"`
	CompetenceDate time.Time     `json:"competenceDate"`
	LotID          *id.ID        `json:"lotId,omitempty"`
	PenID          *id.ID        `json:"penId,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

func itemOf(r ledger.Record) Item {
	return Item{
		ID:             r.ID,
		Number:         r.Number,
		Category:       r.Category,
		Description:    r.Description,
		Amount:         r.Amount,
		CompetenceDate: r.CompetenceDate,
		LotID:          r.LotID,
		PenID:          r.PenID,
		CreatedAt:      r.CreatedAt,
	}
}

// DuplicateGroup is a canonical record and the copies to remove.
type DuplicateGroup struct {
	Canonical  Item   `json:"canonical"`
	Duplicates []Item `json:"duplicates"`
}

// Orphan is an unlinked lot-attributed record whose linked twin exists.
type Orphan struct {
	Record Item `json:"record"`
	Twin   Item `json:"twin"`
}

// Warning code values.
const (
	WarnUnlinkedLotCategory = "UNLINKED_LOT_CATEGORY"
	WarnUnmappedCategory    = "UNMAPPED_CATEGORY"
)

// Warning is a finding that needs a human decision.
type Warning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	RecordID id.ID  `json:"recordId"`
}

// Report is the outcome of a scan.
type Report struct {
	Duplicates []DuplicateGroup `json:"duplicates"`
	Orphans    []Orphan         `json:"orphans"`
	Warnings   []Warning        `json:"warnings"`
	Scanned    int              `json:"scanned"`
	ScannedAt  time.Time        `json:"scannedAt"`
}

// Candidates returns the ids the report proposes for removal.
func (r *Report) Candidates() map[id.ID]struct{} {
	out := make(map[id.ID]struct{})
	for _, g := range r.Duplicates {
		for _, d := range g.Duplicates {
			out[d.ID] = struct{}{}
		}
	}
	for _, o := range r.Orphans {
		out[o.Record.ID] = struct{}{}
	}
	return out
}

// NormalizeDescription lower-cases, trims and collapses inner whitespace.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

type twinKey struct {
	desc   string
	amount string
}

type dupKey struct {
	twinKey
	category category.Code
}

// Scan groups live records by (normalized description, amount, category) and
// flags copies dated within Window of each other, then flags unlinked
// lot-attributed records that have a linked twin.
func Scan(records []ledger.Record, mappings category.Resolver, at time.Time) *Report {
	rep := &Report{ScannedAt: at}

	groups := make(map[dupKey][]ledger.Record)
	linkedTwins := make(map[twinKey][]ledger.Record)
	var keys []dupKey
	for _, r := range records {
		if r.DeletionMark {
			continue
		}
		rep.Scanned++
		tk := twinKey{desc: NormalizeDescription(r.Description), amount: types.RoundMoney(r.Amount).StringFixed(types.MoneyPlaces)}
		k := dupKey{twinKey: tk, category: r.Category.Normalize()}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
		if r.LotID != nil {
			linkedTwins[tk] = append(linkedTwins[tk], r)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].desc != keys[j].desc {
			return keys[i].desc < keys[j].desc
		}
		return keys[i].amount < keys[j].amount
	})

	flagged := make(map[id.ID]struct{})
	for _, k := range keys {
		for _, cluster := range clusters(groups[k]) {
			if len(cluster) < 2 {
				continue
			}
			canon := canonical(cluster)
			g := DuplicateGroup{Canonical: itemOf(canon)}
			for _, r := range cluster {
				if r.ID == canon.ID {
					continue
				}
				g.Duplicates = append(g.Duplicates, itemOf(r))
				flagged[r.ID] = struct{}{}
			}
			rep.Duplicates = append(rep.Duplicates, g)
		}
	}

	for _, k := range keys {
		for _, r := range groups[k] {
			if r.LotID != nil {
				continue
			}
			if _, dup := flagged[r.ID]; dup {
				continue
			}
			m, ok := mappings.Resolve(r.Category, r.CompetenceDate, r.Subject())
			if !ok {
				rep.Warnings = append(rep.Warnings, Warning{
					Code: WarnUnmappedCategory, RecordID: r.ID,
					Message: "category " + string(r.Category) + " has no mapping at " + r.CompetenceDate.Format(time.DateOnly),
				})
				continue
			}
			if !m.RequiresLot {
				continue
			}
			if twin, ok := oldestOther(linkedTwins[k.twinKey], r.ID); ok {
				rep.Orphans = append(rep.Orphans, Orphan{Record: itemOf(r), Twin: itemOf(twin)})
				continue
			}
			rep.Warnings = append(rep.Warnings, Warning{
				Code: WarnUnlinkedLotCategory, RecordID: r.ID,
				Message: "lot-attributed record has no lot link and no linked twin",
			})
		}
	}
	return rep
}

// clusters splits same-key records into runs in which each record is dated
// within Window of the one before it.
func clusters(records []ledger.Record) [][]ledger.Record {
	sorted := make([]ledger.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CompetenceDate.Before(sorted[j].CompetenceDate)
	})

	var out [][]ledger.Record
	var cur []ledger.Record
	for _, r := range sorted {
		if len(cur) > 0 && r.CompetenceDate.Sub(cur[len(cur)-1].CompetenceDate) > Window {
			out = append(out, cur)
			cur = nil
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// canonical prefers a record linked to a lot or pen, then the oldest by
// creation time, then by id.
func canonical(records []ledger.Record) ledger.Record {
	best := records[0]
	for _, r := range records[1:] {
		if better(r, best) {
			best = r
		}
	}
	return best
}

func better(a, b ledger.Record) bool {
	if a.IsLinked() != b.IsLinked() {
		return a.IsLinked()
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return id.Less(a.ID, b.ID)
}

func oldestOther(records []ledger.Record, self id.ID) (ledger.Record, bool) {
	var (
		best  ledger.Record
		found bool
	)
	for _, r := range records {
		if r.ID == self {
			continue
		}
		if !found || better(r, best) {
			best, found = r, true
		}
	}
	return best, found
}
