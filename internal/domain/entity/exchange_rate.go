package entity

import (
	"time"
)

// RateTable maps a currency code to its rate against the table's base currency.
// A code that is absent is unknown; it never means a rate of zero.
type RateTable map[string]float64

// Clone returns an independent copy of the table
func (t RateTable) Clone() RateTable {
	out := make(RateTable, len(t))
	for code, rate := range t {
		out[code] = rate
	}
	return out
}

// Has reports whether the code carries a usable rate
func (t RateTable) Has(code string) bool {
	rate, ok := t[code]
	return ok && rate > 0
}

// Normalize returns a copy without non-positive entries and with base pinned to 1.0.
// The second value lists the codes that were dropped.
func (t RateTable) Normalize(base string) (RateTable, []string) {
	out := make(RateTable, len(t)+1)
	var dropped []string
	for code, rate := range t {
		if rate <= 0 || !IsCurrencyCode(code) {
			dropped = append(dropped, code)
			continue
		}
		out[code] = rate
	}
	out[base] = 1.0
	return out, dropped
}

// Rate returns how many units of to one unit of from buys, given that the
// table is expressed against base.
func (t RateTable) Rate(base, from, to string) (float64, bool) {
	if from == to && (from == base || t.Has(from)) {
		return 1.0, true
	}

	switch {
	case from == base:
		if !t.Has(to) {
			return 0, false
		}
		return t[to], true
	case to == base:
		if !t.Has(from) {
			return 0, false
		}
		return 1 / t[from], true
	default:
		if !t.Has(from) || !t.Has(to) {
			return 0, false
		}
		return t[to] / t[from], true
	}
}

// Convert applies the base, inverse or cross-rate rule to amount
func (t RateTable) Convert(base string, amount float64, from, to string) (float64, bool) {
	switch {
	case from == base && to == base:
		return amount, true
	case from == base:
		if !t.Has(to) {
			return 0, false
		}
		return amount * t[to], true
	case to == base:
		if !t.Has(from) {
			return 0, false
		}
		return amount / t[from], true
	default:
		if !t.Has(from) || !t.Has(to) {
			return 0, false
		}
		return (amount / t[from]) * t[to], true
	}
}

// CachedRates is one wholesale snapshot of the latest rate table
type CachedRates struct {
	Base      string    `json:"base"`
	Rates     RateTable `json:"rates"`
	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source"`
}

// Age returns how old the snapshot is at now
func (c *CachedRates) Age(now time.Time) time.Duration {
	return now.Sub(c.FetchedAt)
}
