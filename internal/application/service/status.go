package service

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Status describes the freshness of the data the service is serving
type Status struct {
	LastUpdated *time.Time `json:"last_updated"`
	IsOffline   bool       `json:"is_offline"`
	MockMode    bool       `json:"mock_mode"`
	CacheAge    string     `json:"cache_age"`
}

// Status returns a consistent snapshot of the service state
func (s *RateService) Status() Status {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()

	return s.statusLocked()
}

// LastUpdated returns when the served latest rates were fetched, or nil
func (s *RateService) LastUpdated() *time.Time {
	return s.Status().LastUpdated
}

// IsOffline reports whether the last fetch failed and cached or synthetic data is being served
func (s *RateService) IsOffline() bool {
	return s.Status().IsOffline
}

// CacheAgeDescription describes the age of the served rates, e.g. "5 minutes ago"
func (s *RateService) CacheAgeDescription() string {
	return s.Status().CacheAge
}

// Subscribe registers fn to be called with every status change. Callbacks
// run synchronously on the goroutine that changed the status and must not
// call back into the service's mutating methods. The returned function
// unregisters fn.
func (s *RateService) Subscribe(fn func(Status)) func() {
	s.subsMutex.Lock()
	defer s.subsMutex.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.subsMutex.Lock()
		defer s.subsMutex.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *RateService) statusLocked() Status {
	var lastUpdated *time.Time
	if s.lastUpdated != nil {
		at := *s.lastUpdated
		lastUpdated = &at
	}

	return Status{
		LastUpdated: lastUpdated,
		IsOffline:   s.offline,
		MockMode:    s.mockMode,
		CacheAge:    describeAge(lastUpdated, s.opts.Now()),
	}
}

func describeAge(lastUpdated *time.Time, now time.Time) string {
	if lastUpdated == nil {
		return "never updated"
	}
	return humanize.RelTime(*lastUpdated, now, "ago", "from now")
}

// markOnline records a successful fetch of t. Fetches of an inactive tier
// leave the status alone.
func (s *RateService) markOnline(t *tier, fetchedAt time.Time) {
	at := fetchedAt
	s.updateTierStatus(t, func() {
		s.lastUpdated = &at
		s.offline = false
	})
}

func (s *RateService) markOffline(t *tier) {
	s.updateTierStatus(t, func() {
		s.offline = true
	})
}

// clearOffline records a successful historical update; lastUpdated tracks latest rates only
func (s *RateService) clearOffline(t *tier) {
	s.updateTierStatus(t, func() {
		s.offline = false
	})
}

func (s *RateService) replaceStatus(lastUpdated *time.Time, offline bool) {
	s.updateStatus(func() {
		s.lastUpdated = lastUpdated
		s.offline = offline
	})
}

// updateTierStatus applies change only while t is the active tier. The
// check runs under statusMutex, which SetMockMode also holds for the swap.
func (s *RateService) updateTierStatus(t *tier, change func()) {
	s.updateStatus(func() {
		if s.currentTier() != t {
			return
		}
		change()
	})
}

// updateStatus applies change and notifies subscribers when the state moved
func (s *RateService) updateStatus(change func()) {
	s.statusMutex.Lock()
	before := s.statusLocked()
	change()
	after := s.statusLocked()
	s.statusMutex.Unlock()

	if sameStatus(before, after) {
		return
	}

	s.subsMutex.Lock()
	callbacks := make([]func(Status), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		callbacks = append(callbacks, fn)
	}
	s.subsMutex.Unlock()

	for _, fn := range callbacks {
		fn(after)
	}
}

func sameStatus(a, b Status) bool {
	if a.IsOffline != b.IsOffline || a.MockMode != b.MockMode {
		return false
	}
	if a.LastUpdated == nil || b.LastUpdated == nil {
		return a.LastUpdated == nil && b.LastUpdated == nil
	}
	return a.LastUpdated.Equal(*b.LastUpdated)
}
