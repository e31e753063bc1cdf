// Package service internal/application/service/rate_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
	"github.com/damon-houk/fx-rate-engine/internal/domain/repository"
	domainservice "github.com/damon-houk/fx-rate-engine/internal/domain/service"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/cache"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/logger"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/metrics"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrUnavailable means no tier could produce the requested data
	ErrUnavailable = errors.New("exchange rates unavailable")
	// ErrUnknownCurrency means the rate table has no entry for a requested code
	ErrUnknownCurrency = fmt.Errorf("%w: currency not in rate table", ErrUnavailable)
	// ErrInvalidCurrency means a code is not three ASCII letters
	ErrInvalidCurrency = errors.New("invalid currency code")
	// ErrInvalidDays means a history window is out of range
	ErrInvalidDays = errors.New("invalid number of days")
)

const latestFlightKey = "latest"

// tier is one source of rates with its own caches. Mock and remote data never share a tier.
type tier struct {
	name    string
	source  domainservice.RateSource
	rates   *cache.RateCache
	history *cache.HistoricalCache

	// store is nil for tiers that are not persisted
	store repository.RateSnapshotRepository

	flight singleflight.Group

	mutex          sync.Mutex
	lastBackground time.Time

	// persistMutex orders history saves so the newest map is queued last
	persistMutex sync.Mutex
}

func newTier(name string, source domainservice.RateSource, policy cache.ExpiryPolicy, store repository.RateSnapshotRepository) *tier {
	return &tier{
		name:    name,
		source:  source,
		rates:   cache.NewRateCache(policy),
		history: cache.NewHistoricalCache(),
		store:   store,
	}
}

// RateService serves latest and historical exchange rates from cache,
// refreshing from the active source when entries expire and falling back
// to stale or synthetic data when the source fails.
type RateService struct {
	opts    Options
	logger  logger.Logger
	metrics *metrics.Metrics

	remote    *tier
	mock      *tier
	active    atomic.Pointer[tier]
	modeMutex sync.Mutex

	statusMutex sync.RWMutex
	lastUpdated *time.Time
	offline     bool
	mockMode    bool

	subsMutex   sync.Mutex
	subscribers map[int]func(Status)
	nextSubID   int

	lifecycleMutex sync.RWMutex
	closed         bool
	background     sync.WaitGroup
}

// NewRateService creates a new rate service. store may be nil, in which case
// nothing is persisted. Only data from remote is ever written to store.
func NewRateService(
	remote domainservice.RateSource,
	mock domainservice.RateSource,
	store repository.RateSnapshotRepository,
	opts Options,
	log logger.Logger,
	m *metrics.Metrics,
) *RateService {
	opts = opts.withDefaults()
	if m == nil {
		m = metrics.NewMetrics()
	}

	s := &RateService{
		opts:        opts,
		logger:      logger.ForComponent(log, "rate_service"),
		metrics:     m,
		remote:      newTier("remote", remote, opts.Expiry, store),
		mock:        newTier("mock", mock, opts.Expiry, nil),
		subscribers: make(map[int]func(Status)),
	}

	s.mockMode = opts.MockMode
	if opts.MockMode {
		s.active.Store(s.mock)
	} else {
		s.active.Store(s.remote)
	}

	return s
}

// BaseCurrency returns the currency rate tables are expressed against
func (s *RateService) BaseCurrency() string {
	return s.opts.BaseCurrency
}

// FetchLatestRates returns the latest rate table. A fresh cache entry is
// returned as is; a stale one is returned and refreshed in the background;
// an expired or missing one is refreshed synchronously.
func (s *RateService) FetchLatestRates(ctx context.Context) (entity.RateTable, error) {
	t := s.currentTier()
	now := s.opts.Now()

	cached, freshness, ok := t.rates.Get(now)
	if ok && !freshness.Expired {
		if freshness.Stale {
			s.countLookup("latest", "stale")
			s.triggerBackgroundRefresh(t, now)
		} else {
			s.countLookup("latest", "fresh")
		}
		return cached.Rates.Clone(), nil
	}

	if ok {
		s.countLookup("latest", "expired")
	} else {
		s.countLookup("latest", "miss")
	}

	return s.refreshLatest(ctx, t)
}

// ForceRefresh fetches the latest rates synchronously regardless of cache state.
// It joins a fetch already in flight instead of starting another.
func (s *RateService) ForceRefresh(ctx context.Context) (entity.RateTable, error) {
	return s.refreshLatest(ctx, s.currentTier())
}

// Convert converts amount from one currency to another using the latest rates
func (s *RateService) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	from, to, err := normalizePair(from, to)
	if err != nil {
		return 0, err
	}

	table, err := s.FetchLatestRates(ctx)
	if err != nil {
		return 0, err
	}

	converted, ok := table.Convert(s.opts.BaseCurrency, amount, from, to)
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrUnknownCurrency, from, to)
	}

	return converted, nil
}

// GetRate returns how many units of to one unit of from buys
func (s *RateService) GetRate(ctx context.Context, from, to string) (float64, error) {
	from, to, err := normalizePair(from, to)
	if err != nil {
		return 0, err
	}

	table, err := s.FetchLatestRates(ctx)
	if err != nil {
		return 0, err
	}

	rate, ok := table.Rate(s.opts.BaseCurrency, from, to)
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrUnknownCurrency, from, to)
	}

	return rate, nil
}

// SetMockMode switches between the remote and the mock tier
func (s *RateService) SetMockMode(enabled bool) {
	s.modeMutex.Lock()
	defer s.modeMutex.Unlock()

	next := s.remote
	if enabled {
		next = s.mock
	}

	// modeMutex is held, so only this call can change the active tier
	if s.currentTier() == next {
		return
	}

	var fetchedAt *time.Time
	if snapshot := next.rates.Snapshot(); snapshot != nil {
		at := snapshot.FetchedAt
		fetchedAt = &at
	}

	// swapped under statusMutex, see updateTierStatus
	s.updateStatus(func() {
		s.active.Store(next)
		s.lastUpdated = fetchedAt
		s.offline = false
		s.mockMode = enabled
	})

	s.logger.Info("Rate source switched", map[string]interface{}{
		"mock_mode": enabled,
	})
}

// MockMode reports whether the mock tier is active
func (s *RateService) MockMode() bool {
	return s.currentTier() == s.mock
}

// ClearCache empties every tier and the durable store
func (s *RateService) ClearCache(ctx context.Context) error {
	for _, t := range []*tier{s.remote, s.mock} {
		t.rates.Clear()
		t.history.Clear()

		t.mutex.Lock()
		t.lastBackground = time.Time{}
		t.mutex.Unlock()
	}

	s.replaceStatus(nil, false)
	s.logger.Info("Rate caches cleared", nil)

	if s.remote.store != nil {
		if err := s.remote.store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear stored rates: %w", err)
		}
	}

	return nil
}

// Restore loads persisted remote rates and history into memory. Records that
// fail validation are skipped. Missing records are not an error.
func (s *RateService) Restore(ctx context.Context) error {
	store := s.remote.store
	if store == nil {
		return nil
	}

	latest, err := store.LoadLatest(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored rates: %w", err)
	}
	if restored := s.validSnapshot(latest); restored != nil {
		s.remote.rates.Set(restored)
		at := restored.FetchedAt
		s.updateTierStatus(s.remote, func() {
			s.lastUpdated = &at
			s.offline = false
		})
	}

	history, err := store.LoadHistory(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored history: %w", err)
	}
	s.remote.history.Replace(s.validHistory(history))

	s.logger.Info("Rate caches restored", map[string]interface{}{
		"has_latest":    latest != nil,
		"history_pairs": s.remote.history.Size(),
	})

	return nil
}

// Close stops accepting background refreshes and waits for running ones
func (s *RateService) Close(ctx context.Context) error {
	s.lifecycleMutex.Lock()
	s.closed = true
	s.lifecycleMutex.Unlock()

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RateService) currentTier() *tier {
	return s.active.Load()
}

// refreshLatest fetches from the tier's source and falls back to the stale
// cache entry, then to the mock table, when the fetch fails.
func (s *RateService) refreshLatest(ctx context.Context, t *tier) (entity.RateTable, error) {
	snapshot, err := s.fetchLatest(ctx, t)
	if err == nil {
		s.markOnline(t, snapshot.FetchedAt)
		return snapshot.Rates.Clone(), nil
	}

	s.logFetchFailure("Latest rates fetch failed", t, err, nil)

	if stale := t.rates.Snapshot(); stale != nil {
		s.metrics.FallbacksTotal.WithLabelValues("stale_cache").Inc()
		s.markOffline(t)
		return stale.Rates.Clone(), nil
	}

	if t != s.mock {
		table, mockErr := s.mock.source.FetchLatest(ctx, s.opts.BaseCurrency)
		if mockErr == nil {
			s.metrics.FallbacksTotal.WithLabelValues("mock").Inc()
			s.markOffline(t)
			return table, nil
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// fetchLatest performs at most one source call per tier at a time; concurrent
// callers share its result.
func (s *RateService) fetchLatest(ctx context.Context, t *tier) (*entity.CachedRates, error) {
	v, err, _ := t.flight.Do(latestFlightKey, func() (interface{}, error) {
		table, err := t.source.FetchLatest(ctx, s.opts.BaseCurrency)
		s.metrics.RemoteFetchesTotal.WithLabelValues(t.name, "latest", metrics.Outcome(err)).Inc()
		if err != nil {
			return nil, err
		}

		table, dropped := table.Normalize(s.opts.BaseCurrency)
		if len(dropped) > 0 {
			s.logger.Debug("Dropped invalid rate entries", map[string]interface{}{
				"source":  t.name,
				"dropped": dropped,
			})
		}

		snapshot := &entity.CachedRates{
			Base:      s.opts.BaseCurrency,
			Rates:     table,
			FetchedAt: s.opts.Now(),
			Source:    t.source.Name(),
		}
		t.rates.Set(snapshot)
		s.persistLatest(t, snapshot)

		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*entity.CachedRates), nil
}

// triggerBackgroundRefresh starts a refresh unless one started within the cooldown.
// The cooldown is stamped before the goroutine is spawned.
func (s *RateService) triggerBackgroundRefresh(t *tier, now time.Time) {
	s.lifecycleMutex.RLock()
	defer s.lifecycleMutex.RUnlock()

	if s.closed {
		return
	}

	t.mutex.Lock()
	if !t.lastBackground.IsZero() && now.Sub(t.lastBackground) < s.opts.BackgroundCooldown {
		t.mutex.Unlock()
		return
	}
	t.lastBackground = now
	t.mutex.Unlock()

	s.background.Add(1)
	go func() {
		defer s.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.BackgroundTimeout)
		defer cancel()

		snapshot, err := s.fetchLatest(ctx, t)
		s.metrics.BackgroundRefreshTotal.WithLabelValues(metrics.Outcome(err)).Inc()
		if err != nil {
			s.logger.Warn("Background refresh failed", map[string]interface{}{
				"source": t.name,
				"error":  err.Error(),
			})
			return
		}

		s.markOnline(t, snapshot.FetchedAt)
	}()
}

func (s *RateService) persistLatest(t *tier, snapshot *entity.CachedRates) {
	if t.store == nil {
		return
	}

	if err := t.store.SaveLatest(context.Background(), snapshot); err != nil {
		s.logger.Error("Failed to save latest rates", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *RateService) persistHistory(t *tier) {
	if t.store == nil {
		return
	}

	t.persistMutex.Lock()
	defer t.persistMutex.Unlock()

	if err := t.store.SaveHistory(context.Background(), t.history.All()); err != nil {
		s.logger.Error("Failed to save historical rates", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *RateService) validSnapshot(latest *entity.CachedRates) *entity.CachedRates {
	if latest == nil {
		return nil
	}
	if entity.NormalizeCode(latest.Base) != s.opts.BaseCurrency || latest.FetchedAt.IsZero() {
		s.logger.Warn("Ignoring stored rates", map[string]interface{}{
			"stored_base": latest.Base,
		})
		return nil
	}

	table, _ := latest.Rates.Normalize(s.opts.BaseCurrency)
	return &entity.CachedRates{
		Base:      s.opts.BaseCurrency,
		Rates:     table,
		FetchedAt: latest.FetchedAt,
		Source:    latest.Source,
	}
}

func (s *RateService) validHistory(history map[string]*entity.CachedHistoricalSeries) map[string]*entity.CachedHistoricalSeries {
	out := make(map[string]*entity.CachedHistoricalSeries, len(history))
	for key, series := range history {
		_, _, ok := entity.SplitPairKey(key)
		if series == nil || series.PairKey != key || !ok {
			s.logger.Warn("Ignoring stored series", map[string]interface{}{
				"pair": key,
			})
			continue
		}

		cleaned := (&entity.CachedHistoricalSeries{PairKey: key}).Merge(series.Points, maxDay, series.FetchedAt, s.opts.HistoryMaxDays)
		if len(cleaned.Points) == 0 {
			continue
		}
		out[key] = cleaned
	}
	return out
}

// logFetchFailure logs recoverable failures as warnings; a malformed request
// is a bug and is logged as an error, though the fallback chain still applies.
func (s *RateService) logFetchFailure(msg string, t *tier, err error, fields map[string]interface{}) {
	logFields := map[string]interface{}{
		"source":      t.name,
		"error":       err.Error(),
		"status_code": domainservice.StatusCode(err),
	}
	for k, v := range fields {
		logFields[k] = v
	}

	if domainservice.Recoverable(err) {
		s.logger.Warn(msg, logFields)
		return
	}
	s.logger.Error(msg, logFields)
}

func (s *RateService) countLookup(cacheName, result string) {
	s.metrics.CacheLookupsTotal.WithLabelValues(cacheName, result).Inc()
}

// maxDay lets Merge keep every stored day
var maxDay = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

func normalizePair(from, to string) (string, string, error) {
	from, to = entity.NormalizeCode(from), entity.NormalizeCode(to)
	if !entity.IsCurrencyCode(from) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidCurrency, from)
	}
	if !entity.IsCurrencyCode(to) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidCurrency, to)
	}
	return from, to, nil
}
