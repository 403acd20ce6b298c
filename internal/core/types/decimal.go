// Package types provides common type aliases and utilities.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// Percentage is a share expressed in percent points (0..100).
type Percentage = decimal.Decimal

// MoneyPlaces is the number of fractional digits persisted for amounts.
const MoneyPlaces int32 = 2

var hundred = decimal.NewFromInt(100)

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// Hundred returns 100 as a decimal.
func Hundred() decimal.Decimal {
	return hundred
}

// RoundMoney rounds half away from zero to cents.
func RoundMoney(m Money) Money {
	return m.Round(MoneyPlaces)
}

// PercentOf returns amount × pct / 100 rounded to cents.
func PercentOf(amount Money, pct Percentage) Money {
	return RoundMoney(amount.Mul(pct).Div(hundred))
}

// Sum adds up all values.
func Sum(values ...Money) Money {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Month is a reference month normalized to the first day at 00:00 UTC.
type Month struct {
	time.Time
}

// MonthOf truncates t to its reference month.
func MonthOf(t time.Time) Month {
	t = t.UTC()
	return Month{time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)}
}

// ParseMonth parses "2006-01" or "2006-01-02" into a Month.
func ParseMonth(s string) (Month, error) {
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return MonthOf(t), nil
		}
	}
	return Month{}, fmt.Errorf("invalid month %q, expected YYYY-MM", s)
}

// String formats the month as YYYY-MM.
func (m Month) String() string {
	return m.Format("2006-01")
}

// Next returns the following month.
func (m Month) Next() Month {
	return Month{m.AddDate(0, 1, 0)}
}

// End returns the exclusive upper bound of the month.
func (m Month) End() time.Time {
	return m.AddDate(0, 1, 0)
}

// Contains reports whether t falls within the month.
func (m Month) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(m.Time) && t.Before(m.End())
}

// MonthsBetween lists months from..to inclusive. Empty when to precedes from.
func MonthsBetween(from, to Month) []Month {
	var months []Month
	for m := from; !m.After(to.Time); m = m.Next() {
		months = append(months, m)
	}
	return months
}

// Period is a half-open time range [From, To).
type Period struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls within the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.From) && t.Before(p.To)
}

// MonthPeriod returns the period covering the month.
func MonthPeriod(m Month) Period {
	return Period{From: m.Time, To: m.End()}
}
