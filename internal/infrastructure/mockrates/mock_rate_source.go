// Package mockrates provides an offline RateSource with a fixed table and synthetic history
package mockrates

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"time"

	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
	"github.com/damon-houk/fx-rate-engine/internal/domain/service"
)

// MaxDailyStep bounds the multiplicative day-to-day move of a synthetic series
const MaxDailyStep = 0.015

// usdRates are the mock rates of every supported currency per one US dollar
var usdRates = entity.RateTable{
	"USD": 1.0,
	"EUR": 0.92,
	"GBP": 0.79,
	"JPY": 149.5,
	"CHF": 0.88,
	"CAD": 1.36,
	"AUD": 1.52,
	"NZD": 1.66,
	"CNY": 7.24,
	"HKD": 7.82,
	"SGD": 1.35,
	"KRW": 1335.0,
	"INR": 83.2,
	"IDR": 15650.0,
	"THB": 35.8,
	"MYR": 4.68,
	"PHP": 56.4,
	"VND": 24350.0,
	"TWD": 32.1,
	"SEK": 10.6,
	"NOK": 10.8,
	"DKK": 6.87,
	"PLN": 4.02,
	"CZK": 23.1,
	"HUF": 362.0,
	"TRY": 32.4,
	"RUB": 92.5,
	"ILS": 3.72,
	"AED": 3.6725,
	"SAR": 3.75,
	"ZAR": 18.7,
	"MXN": 17.1,
	"BRL": 4.97,
	"ARS": 870.0,
	"CLP": 935.0,
	"COP": 3920.0,
	"EGP": 47.3,
	"NGN": 1450.0,
}

// Options configures a MockRateSource
type Options struct {
	// Base is the currency tables are expressed against; defaults to USD
	Base string
	// Now is the clock anchoring synthetic series; defaults to time.Now
	Now func() time.Time
	// Location decides what "today" is; defaults to UTC
	Location *time.Location
}

// MockRateSource is a deterministic in-memory RateSource
type MockRateSource struct {
	base  string
	table entity.RateTable
	now   func() time.Time
	loc   *time.Location
}

var _ service.RateSource = (*MockRateSource)(nil)

// NewMockRateSource creates a mock source expressed against opts.Base
func NewMockRateSource(opts Options) (*MockRateSource, error) {
	base := opts.Base
	if base == "" {
		base = "USD"
	}

	table, err := rebase(base)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	return &MockRateSource{
		base:  base,
		table: table,
		now:   now,
		loc:   loc,
	}, nil
}

// Name identifies the mock source
func (m *MockRateSource) Name() string {
	return "mock"
}

// Currencies lists every supported code in alphabetical order
func (m *MockRateSource) Currencies() []string {
	codes := make([]string, 0, len(m.table))
	for code := range m.table {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// FetchLatest returns the fixed table, rebased when base differs from the configured one
func (m *MockRateSource) FetchLatest(_ context.Context, base string) (entity.RateTable, error) {
	if base == m.base {
		return m.table.Clone(), nil
	}

	table, err := rebase(base)
	if err != nil {
		return nil, &service.SourceError{Op: "mock latest rates", Kind: service.ErrDecoding, Err: err}
	}
	return table, nil
}

// FetchDay returns the synthetic from->to rate of one day before today
func (m *MockRateSource) FetchDay(_ context.Context, from, to string, day time.Time) (entity.HistoricalPoint, error) {
	points, err := m.series("mock historical rate", from, to, day, day)
	if err != nil {
		return entity.HistoricalPoint{}, err
	}
	return points[0], nil
}

// FetchRange returns the synthetic from->to series for [start, end]
func (m *MockRateSource) FetchRange(_ context.Context, from, to string, start, end time.Time) ([]entity.HistoricalPoint, error) {
	return m.series("mock historical range", from, to, start, end)
}

// series walks backward from today's rate. Each step multiplies by a factor
// in [1-MaxDailyStep, 1+MaxDailyStep] drawn from a generator seeded by the
// pair and today's date, so every call made on the same day agrees.
func (m *MockRateSource) series(op, from, to string, start, end time.Time) ([]entity.HistoricalPoint, error) {
	anchor, ok := m.table.Rate(m.base, from, to)
	if !ok {
		return nil, &service.SourceError{Op: op, Kind: service.ErrDecoding, Err: fmt.Errorf("unsupported currency pair %s/%s", from, to)}
	}

	today := entity.Day(m.now(), m.loc)
	start = entity.Day(start, time.UTC)
	end = entity.Day(end, time.UTC)

	if end.Before(start) || !end.Before(today) {
		return nil, &service.SourceError{
			Op:   op,
			Kind: service.ErrMalformedRequest,
			Err: fmt.Errorf("range %s..%s must end before %s", start.Format(entity.DateLayout),
				end.Format(entity.DateLayout), today.Format(entity.DateLayout)),
		}
	}

	rng := rand.New(rand.NewSource(seed(from, to, today)))
	steps := entity.DaysBetween(start, today)

	// walk[i] is the rate i days before today
	walk := make([]float64, steps+1)
	walk[0] = anchor
	for i := 1; i <= steps; i++ {
		factor := 1 + (rng.Float64()*2-1)*MaxDailyStep
		walk[i] = walk[i-1] * factor
	}

	points := make([]entity.HistoricalPoint, 0, entity.DaysBetween(start, end)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		points = append(points, entity.HistoricalPoint{Date: d, Rate: walk[entity.DaysBetween(d, today)]})
	}
	return points, nil
}

func seed(from, to string, today time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte(entity.PairKey(from, to)))
	h.Write([]byte(today.Format(entity.DateLayout)))
	return int64(h.Sum64())
}

func rebase(base string) (entity.RateTable, error) {
	pivot, ok := usdRates[base]
	if !ok {
		return nil, fmt.Errorf("mock rates do not cover base currency %s", base)
	}

	table := make(entity.RateTable, len(usdRates))
	for code, rate := range usdRates {
		table[code] = rate / pivot
	}
	table[base] = 1.0
	return table, nil
}
