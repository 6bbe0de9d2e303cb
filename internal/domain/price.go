package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used for price samples.
const DateLayout = "2006-01-02"

// MonthLayout is the calendar month format used for burn aggregation.
const MonthLayout = "2006-01"

// PriceSample is a historical USD price for a symbol on a calendar date (UTC).
// Written once. A zero price is the sentinel for "looked up, unavailable".
type PriceSample struct {
	Symbol string
	Date   string // YYYY-MM-DD
	Price  decimal.Decimal
}

// IsSentinel reports whether the sample marks an unavailable price.
func (p *PriceSample) IsSentinel() bool {
	return p.Price.IsZero()
}

// SymbolDate keys a price lookup.
type SymbolDate struct {
	Symbol string
	Date   string
}

// DateOf returns the UTC calendar date of a unix timestamp.
func DateOf(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(DateLayout)
}

// MonthOf returns the UTC calendar month of a unix timestamp.
func MonthOf(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(MonthLayout)
}
