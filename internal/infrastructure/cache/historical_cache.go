package cache

import (
	"sync"
	"time"

	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
)

// HistoricalCache stores one series per currency pair, keyed by pair key.
// Stored series are treated as immutable; updates replace them.
type HistoricalCache struct {
	series map[string]*entity.CachedHistoricalSeries
	mutex  sync.RWMutex
}

// NewHistoricalCache creates an empty historical cache
func NewHistoricalCache() *HistoricalCache {
	return &HistoricalCache{
		series: make(map[string]*entity.CachedHistoricalSeries),
	}
}

// Get returns the series of a pair, or nil
func (c *HistoricalCache) Get(pairKey string) *entity.CachedHistoricalSeries {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.series[pairKey]
}

// Put stores or replaces a series
func (c *HistoricalCache) Put(series *entity.CachedHistoricalSeries) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.series[series.PairKey] = series
}

// All returns a shallow copy of the pair -> series mapping
func (c *HistoricalCache) All() map[string]*entity.CachedHistoricalSeries {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	out := make(map[string]*entity.CachedHistoricalSeries, len(c.series))
	for key, series := range c.series {
		out[key] = series
	}
	return out
}

// Replace swaps the whole mapping, used when restoring from storage
func (c *HistoricalCache) Replace(all map[string]*entity.CachedHistoricalSeries) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.series = make(map[string]*entity.CachedHistoricalSeries, len(all))
	for key, series := range all {
		c.series[key] = series
	}
}

// Clear removes all series
func (c *HistoricalCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.series = make(map[string]*entity.CachedHistoricalSeries)
}

// Size returns the number of cached pairs
func (c *HistoricalCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.series)
}

// DateRange is an inclusive span of calendar days
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of days in the range
func (r DateRange) Days() int {
	return entity.DaysBetween(r.Start, r.End) + 1
}

// UpdatePlan lists the remote calls needed to bring a series up to date
// for a window of Days ending Yesterday.
type UpdatePlan struct {
	Days      int
	Yesterday time.Time

	// Initial is set when there is nothing usable cached and the whole window
	// is loaded with one range call. The cached series is then replaced.
	Initial *DateRange

	// TrailingDays are fetched one call per day; TrailingRange with one range call.
	TrailingDays  []time.Time
	TrailingRange *DateRange

	// Leading covers days at the start of the window older than the cached series.
	Leading *DateRange
}

// Empty reports whether the cache already satisfies the window
func (p UpdatePlan) Empty() bool {
	return p.Initial == nil && len(p.TrailingDays) == 0 && p.TrailingRange == nil && p.Leading == nil
}

// MissingDays is the number of calendar days the plan fetches
func (p UpdatePlan) MissingDays() int {
	n := len(p.TrailingDays)
	for _, r := range []*DateRange{p.Initial, p.TrailingRange, p.Leading} {
		if r != nil {
			n += r.Days()
		}
	}
	return n
}

// PlanUpdate works out which days of the window [yesterday-days+1, yesterday]
// are absent from series. Trailing gaps of at most perDayThreshold days are
// fetched day by day, larger ones with a single range call. A series whose
// newest day predates the window is extended across the gap while the gap is
// shorter than the series itself, and reloaded otherwise.
func PlanUpdate(series *entity.CachedHistoricalSeries, days int, yesterday time.Time, perDayThreshold int) UpdatePlan {
	plan := UpdatePlan{Days: days, Yesterday: yesterday}
	windowStart := yesterday.AddDate(0, 0, -(days - 1))

	latest, ok := series.MostRecentDate()
	if !ok {
		plan.Initial = &DateRange{Start: windowStart, End: yesterday}
		return plan
	}

	gap := entity.DaysBetween(latest, yesterday)
	if series.DaysMissing(yesterday, days) >= days && gap >= len(series.Points) {
		plan.Initial = &DateRange{Start: windowStart, End: yesterday}
		return plan
	}

	if gap > 0 {
		first := latest.AddDate(0, 0, 1)
		if gap <= perDayThreshold {
			for d := first; !d.After(yesterday); d = d.AddDate(0, 0, 1) {
				plan.TrailingDays = append(plan.TrailingDays, d)
			}
		} else {
			plan.TrailingRange = &DateRange{Start: first, End: yesterday}
		}
	}

	if earliest, _ := series.EarliestDate(); earliest.After(windowStart) {
		plan.Leading = &DateRange{Start: windowStart, End: earliest.AddDate(0, 0, -1)}
	}

	return plan
}
