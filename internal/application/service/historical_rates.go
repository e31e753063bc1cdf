package service

import (
	"context"
	"fmt"

	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/cache"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/metrics"
	"golang.org/x/sync/errgroup"
)

// FetchHistoricalRates returns the daily from->to rates of the days calendar
// days ending yesterday, oldest first. Only days absent from the cache are
// fetched; concurrent calls for the same window share one update.
func (s *RateService) FetchHistoricalRates(ctx context.Context, from, to string, days int) ([]entity.HistoricalPoint, error) {
	from, to, err := normalizePair(from, to)
	if err != nil {
		return nil, err
	}
	if days < 1 || days > s.opts.HistoryMaxDays {
		return nil, fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidDays, days, s.opts.HistoryMaxDays)
	}

	t := s.currentTier()
	flightKey := fmt.Sprintf("history:%s:%d", entity.PairKey(from, to), days)

	v, err, _ := t.flight.Do(flightKey, func() (interface{}, error) {
		return s.rollHistory(ctx, t, from, to, days)
	})
	if err != nil {
		return nil, err
	}

	// callers sharing a flight must not share the slice
	shared := v.([]entity.HistoricalPoint)
	points := make([]entity.HistoricalPoint, len(shared))
	copy(points, shared)
	return points, nil
}

func (s *RateService) rollHistory(ctx context.Context, t *tier, from, to string, days int) ([]entity.HistoricalPoint, error) {
	now := s.opts.Now()
	yesterday := entity.Yesterday(now, s.opts.Calendar)
	key := entity.PairKey(from, to)

	series := t.history.Get(key)
	plan := cache.PlanUpdate(series, days, yesterday, s.opts.PerDayThreshold)
	if plan.Empty() {
		s.countLookup("history", "fresh")
		return series.Last(days), nil
	}

	if series == nil {
		s.countLookup("history", "miss")
	} else {
		s.countLookup("history", "partial")
	}

	s.logger.Debug("Updating historical series", map[string]interface{}{
		"pair":         key,
		"days":         days,
		"missing_days": plan.MissingDays(),
		"per_day":      len(plan.TrailingDays),
		"source":       t.name,
	})

	fetched, err := s.fetchMissing(ctx, t, from, to, plan)
	if err != nil {
		return s.historyFallback(ctx, t, series, from, to, plan, err)
	}

	// merge into the series as it is now; a concurrent update of another window may have landed
	t.mutex.Lock()
	base := t.history.Get(key)
	if base == nil || plan.Initial != nil {
		// a series too old to extend is replaced rather than left with a hole
		base = &entity.CachedHistoricalSeries{PairKey: key}
	}
	merged := base.Merge(fetched, yesterday, now, s.opts.HistoryMaxDays)
	t.history.Put(merged)
	t.mutex.Unlock()

	s.persistHistory(t)
	s.clearOffline(t)

	return merged.Last(days), nil
}

// fetchMissing issues every call of the plan, at most FetchConcurrency at a
// time. Results are collected per call and combined once all have finished.
func (s *RateService) fetchMissing(ctx context.Context, t *tier, from, to string, plan cache.UpdatePlan) ([]entity.HistoricalPoint, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.FetchConcurrency)

	var ranges []cache.DateRange
	for _, r := range []*cache.DateRange{plan.Initial, plan.TrailingRange, plan.Leading} {
		if r != nil {
			ranges = append(ranges, *r)
		}
	}

	results := make([][]entity.HistoricalPoint, len(ranges)+len(plan.TrailingDays))

	for i, r := range ranges {
		i, r := i, r
		g.Go(func() error {
			points, err := t.source.FetchRange(gctx, from, to, r.Start, r.End)
			s.metrics.RemoteFetchesTotal.WithLabelValues(t.name, "range", metrics.Outcome(err)).Inc()
			if err != nil {
				return err
			}
			results[i] = points
			return nil
		})
	}

	for j, day := range plan.TrailingDays {
		slot, day := len(ranges)+j, day
		g.Go(func() error {
			point, err := t.source.FetchDay(gctx, from, to, day)
			s.metrics.RemoteFetchesTotal.WithLabelValues(t.name, "day", metrics.Outcome(err)).Inc()
			if err != nil {
				return err
			}
			results[slot] = []entity.HistoricalPoint{point}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []entity.HistoricalPoint
	for _, points := range results {
		all = append(all, points...)
	}
	return all, nil
}

// historyFallback serves whatever is cached, or a synthetic series when
// nothing is, after a failed update.
func (s *RateService) historyFallback(ctx context.Context, t *tier, series *entity.CachedHistoricalSeries, from, to string, plan cache.UpdatePlan, cause error) ([]entity.HistoricalPoint, error) {
	s.logFetchFailure("Historical rates fetch failed", t, cause, map[string]interface{}{
		"pair": entity.PairKey(from, to),
	})

	if series != nil && len(series.Points) > 0 {
		s.metrics.FallbacksTotal.WithLabelValues("partial_history").Inc()
		s.markOffline(t)
		return series.Last(plan.Days), nil
	}

	if t != s.mock {
		start := plan.Yesterday.AddDate(0, 0, -(plan.Days - 1))
		synthetic, err := s.mock.source.FetchRange(ctx, from, to, start, plan.Yesterday)
		if err == nil {
			s.metrics.FallbacksTotal.WithLabelValues("synthetic_history").Inc()
			s.markOffline(t)
			return synthetic, nil
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, cause)
}
