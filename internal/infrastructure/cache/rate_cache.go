package cache

import (
	"sync"
	"time"

	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
)

// ExpiryPolicy decides how long a latest-rates snapshot stays usable.
// Weekdays inside [MarketOpenHour, MarketCloseHour) use the shorter
// MarketHoursExpiry, every other moment uses OffHoursExpiry.
type ExpiryPolicy struct {
	MarketOpenHour    int
	MarketCloseHour   int
	MarketHoursExpiry time.Duration
	OffHoursExpiry    time.Duration
	StaleAfter        time.Duration
	Location          *time.Location
}

// DefaultExpiryPolicy returns the 08-20 weekday policy with 1h/2h expiry and 30m staleness
func DefaultExpiryPolicy() ExpiryPolicy {
	return ExpiryPolicy{
		MarketOpenHour:    8,
		MarketCloseHour:   20,
		MarketHoursExpiry: time.Hour,
		OffHoursExpiry:    2 * time.Hour,
		StaleAfter:        30 * time.Minute,
		Location:          time.Local,
	}
}

// IsMarketHours reports whether now falls in the weekday trading window
func (p ExpiryPolicy) IsMarketHours(now time.Time) bool {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	hour := local.Hour()
	return hour >= p.MarketOpenHour && hour < p.MarketCloseHour
}

// ExpiryThreshold returns the expiry duration in effect at now
func (p ExpiryPolicy) ExpiryThreshold(now time.Time) time.Duration {
	if p.IsMarketHours(now) {
		return p.MarketHoursExpiry
	}
	return p.OffHoursExpiry
}

// Freshness describes a cached snapshot at a point in time
type Freshness struct {
	Age     time.Duration
	Expired bool
	Stale   bool
}

// Evaluate computes the freshness of rates at now
func (p ExpiryPolicy) Evaluate(rates *entity.CachedRates, now time.Time) Freshness {
	age := rates.Age(now)
	return Freshness{
		Age:     age,
		Expired: age > p.ExpiryThreshold(now),
		Stale:   age > p.StaleAfter,
	}
}

// RateCache holds the single latest-rates snapshot. Snapshots are replaced
// wholesale and never mutated after Set, so readers may keep the pointer.
type RateCache struct {
	entry  *entity.CachedRates
	policy ExpiryPolicy
	mutex  sync.RWMutex
}

// NewRateCache creates an empty cache governed by policy
func NewRateCache(policy ExpiryPolicy) *RateCache {
	return &RateCache{policy: policy}
}

// Get returns the cached snapshot and its freshness at now. It never blocks on I/O.
func (c *RateCache) Get(now time.Time) (*entity.CachedRates, Freshness, bool) {
	c.mutex.RLock()
	entry := c.entry
	c.mutex.RUnlock()

	if entry == nil {
		return nil, Freshness{}, false
	}

	return entry, c.policy.Evaluate(entry, now), true
}

// Snapshot returns the cached snapshot regardless of age
func (c *RateCache) Snapshot() *entity.CachedRates {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.entry
}

// Set replaces the snapshot
func (c *RateCache) Set(rates *entity.CachedRates) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entry = rates
}

// Clear drops the snapshot
func (c *RateCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entry = nil
}
