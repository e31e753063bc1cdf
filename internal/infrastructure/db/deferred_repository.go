// Package db internal/infrastructure/db/deferred_repository.go
package db

import (
	"context"
	"errors"
	"sync"

	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
	"github.com/damon-houk/fx-rate-engine/internal/domain/repository"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/logger"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/metrics"
)

// DeferredRepository decorates a snapshot repository with write-behind saves.
// Save calls return immediately; a worker goroutine writes the newest pending
// snapshot of each record. An unwritten snapshot is replaced by a newer one,
// so a crash loses at most the most recent write of each record.
type DeferredRepository struct {
	next    repository.RateSnapshotRepository
	logger  logger.Logger
	metrics *metrics.Metrics

	mutex          sync.Mutex
	pendingLatest  *entity.CachedRates
	pendingHistory map[string]*entity.CachedHistoricalSeries
	closed         bool

	// writeMutex serializes writes to next so Clear cannot race a flush
	writeMutex sync.Mutex

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

var _ repository.RateSnapshotRepository = (*DeferredRepository)(nil)

// NewDeferredRepository wraps next and starts the write-behind worker
func NewDeferredRepository(next repository.RateSnapshotRepository, log logger.Logger, m *metrics.Metrics) *DeferredRepository {
	r := &DeferredRepository{
		next:    next,
		logger:  logger.ForComponent(log, "snapshot_writer"),
		metrics: m,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// LoadLatest returns the pending snapshot if one is queued, otherwise the stored one
func (r *DeferredRepository) LoadLatest(ctx context.Context) (*entity.CachedRates, error) {
	r.mutex.Lock()
	pending := r.pendingLatest
	r.mutex.Unlock()

	if pending != nil {
		return pending, nil
	}
	return r.next.LoadLatest(ctx)
}

// SaveLatest queues the snapshot for writing
func (r *DeferredRepository) SaveLatest(ctx context.Context, rates *entity.CachedRates) error {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return r.next.SaveLatest(ctx, rates)
	}
	r.pendingLatest = rates
	r.mutex.Unlock()

	r.signal()
	return nil
}

// LoadHistory returns the pending mapping if one is queued, otherwise the stored one
func (r *DeferredRepository) LoadHistory(ctx context.Context) (map[string]*entity.CachedHistoricalSeries, error) {
	r.mutex.Lock()
	pending := r.pendingHistory
	r.mutex.Unlock()

	if pending != nil {
		return pending, nil
	}
	return r.next.LoadHistory(ctx)
}

// SaveHistory queues the mapping for writing
func (r *DeferredRepository) SaveHistory(ctx context.Context, history map[string]*entity.CachedHistoricalSeries) error {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return r.next.SaveHistory(ctx, history)
	}
	r.pendingHistory = history
	r.mutex.Unlock()

	r.signal()
	return nil
}

// Clear drops anything queued and clears the underlying store
func (r *DeferredRepository) Clear(ctx context.Context) error {
	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()

	r.mutex.Lock()
	r.pendingLatest = nil
	r.pendingHistory = nil
	r.mutex.Unlock()

	return r.next.Clear(ctx)
}

// Flush writes everything queued and returns the write errors
func (r *DeferredRepository) Flush(ctx context.Context) error {
	return r.flush(ctx)
}

// Close stops the worker and flushes what is still queued. Later saves write through.
func (r *DeferredRepository) Close(ctx context.Context) error {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return nil
	}
	r.closed = true
	r.mutex.Unlock()

	close(r.done)
	r.wg.Wait()

	return r.flush(ctx)
}

func (r *DeferredRepository) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *DeferredRepository) run() {
	defer r.wg.Done()

	for {
		select {
		case <-r.wake:
			if err := r.flush(context.Background()); err != nil {
				r.logger.Error("Failed to persist rate snapshot", map[string]interface{}{
					"error": err.Error(),
				})
			}
		case <-r.done:
			return
		}
	}
}

func (r *DeferredRepository) flush(ctx context.Context) error {
	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()

	r.mutex.Lock()
	latest, history := r.pendingLatest, r.pendingHistory
	r.pendingLatest, r.pendingHistory = nil, nil
	r.mutex.Unlock()

	var errs []error
	if latest != nil {
		if err := r.next.SaveLatest(ctx, latest); err != nil {
			errs = append(errs, err)
			r.requeueLatest(latest)
		}
	}
	if history != nil {
		if err := r.next.SaveHistory(ctx, history); err != nil {
			errs = append(errs, err)
			r.requeueHistory(history)
		}
	}

	if len(errs) > 0 && r.metrics != nil {
		r.metrics.PersistenceFailuresTotal.Add(float64(len(errs)))
	}

	return errors.Join(errs...)
}

// requeueLatest puts a failed snapshot back unless a newer one arrived meanwhile
func (r *DeferredRepository) requeueLatest(latest *entity.CachedRates) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.pendingLatest == nil {
		r.pendingLatest = latest
	}
}

func (r *DeferredRepository) requeueHistory(history map[string]*entity.CachedHistoricalSeries) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.pendingHistory == nil {
		r.pendingHistory = history
	}
}
