package internal

import (
	"context"
	"io"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/damon-houk/fx-rate-engine/internal/application/service"
	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/db"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/logger"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/metrics"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/mockrates"
	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowSource adds provider-like latency to the deterministic mock source and counts calls
type slowSource struct {
	*mockrates.MockRateSource
	latency time.Duration
	calls   atomic.Int64
}

func (s *slowSource) Name() string {
	return "remote"
}

func (s *slowSource) FetchLatest(ctx context.Context, base string) (entity.RateTable, error) {
	s.calls.Add(1)
	time.Sleep(s.latency)
	return s.MockRateSource.FetchLatest(ctx, base)
}

func (s *slowSource) FetchDay(ctx context.Context, from, to string, day time.Time) (entity.HistoricalPoint, error) {
	s.calls.Add(1)
	time.Sleep(s.latency)
	return s.MockRateSource.FetchDay(ctx, from, to, day)
}

func (s *slowSource) FetchRange(ctx context.Context, from, to string, start, end time.Time) ([]entity.HistoricalPoint, error) {
	s.calls.Add(1)
	time.Sleep(s.latency)
	return s.MockRateSource.FetchRange(ctx, from, to, start, end)
}

func TestPerformance(t *testing.T) {
	// Skip in short mode or CI
	if testing.Short() {
		t.Skip("Skipping performance test in short mode")
	}

	// Setup test database
	dbPath, err := os.MkdirTemp("", "badger-perf-test")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(dbPath)

	badgerOpts := badger.DefaultOptions(dbPath).WithLogger(nil)
	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer badgerDB.Close()

	log := logger.NewJSONLogger(io.Discard, logger.InfoLevel)
	m := metrics.NewMetrics()

	// Initialize repositories and services
	store := db.NewDeferredRepository(db.NewBadgerSnapshotRepository(badgerDB), log, m)
	defer store.Close(context.Background())

	base, err := mockrates.NewMockRateSource(mockrates.Options{Base: "USD"})
	require.NoError(t, err)
	remote := &slowSource{MockRateSource: base, latency: 20 * time.Millisecond}

	fallback, err := mockrates.NewMockRateSource(mockrates.Options{Base: "USD"})
	require.NoError(t, err)

	rateService := service.NewRateService(remote, fallback, store, service.DefaultOptions(), log, m)
	defer rateService.Close(context.Background())

	// Performance test configuration
	numRequests := 1000
	concurrency := 10
	currencies := base.Currencies()

	t.Run("Currency Conversion", func(t *testing.T) {
		startTime := time.Now()
		var failures atomic.Int64

		wg := sync.WaitGroup{}
		wg.Add(concurrency)

		perWorker := numRequests / concurrency

		for i := 0; i < concurrency; i++ {
			go func(workerID int) {
				defer wg.Done()

				rng := rand.New(rand.NewSource(int64(workerID)))
				ctx := context.Background()
				for j := 0; j < perWorker; j++ {
					from := currencies[rng.Intn(len(currencies))]
					to := currencies[rng.Intn(len(currencies))]
					amount := 1 + float64(rng.Intn(100000))/100.0

					if _, err := rateService.Convert(ctx, amount, from, to); err != nil {
						failures.Add(1)
						t.Logf("Error converting %s to %s: %v", from, to, err)
					}
				}
			}(i)
		}

		wg.Wait()
		duration := time.Since(startTime)

		// Calculate throughput
		throughput := float64(numRequests) / duration.Seconds()
		t.Logf("Currency conversion: %d conversions in %v (%.2f req/sec)",
			numRequests, duration, throughput)

		assert.Zero(t, failures.Load())
		assert.Equal(t, int64(1), remote.calls.Load(), "concurrent conversions should share one fetch")
	})

	t.Run("Historical Rates", func(t *testing.T) {
		pairs := [][2]string{{"USD", "EUR"}, {"EUR", "GBP"}, {"USD", "JPY"}, {"GBP", "CHF"}, {"AUD", "NZD"}}
		callsBefore := remote.calls.Load()
		startTime := time.Now()
		var failures atomic.Int64

		wg := sync.WaitGroup{}
		wg.Add(concurrency)

		perWorker := numRequests / concurrency / 10

		for i := 0; i < concurrency; i++ {
			go func(workerID int) {
				defer wg.Done()

				ctx := context.Background()
				for j := 0; j < perWorker; j++ {
					pair := pairs[(workerID+j)%len(pairs)]
					points, err := rateService.FetchHistoricalRates(ctx, pair[0], pair[1], 30)
					if err != nil || len(points) != 30 {
						failures.Add(1)
						t.Logf("Error fetching %s/%s history: %v", pair[0], pair[1], err)
					}
				}
			}(i)
		}

		wg.Wait()
		duration := time.Since(startTime)

		t.Logf("Historical rates: %d requests in %v (%d provider calls)",
			concurrency*perWorker, duration, remote.calls.Load()-callsBefore)

		assert.Zero(t, failures.Load())
		assert.Equal(t, int64(len(pairs)), remote.calls.Load()-callsBefore, "one range call per pair")
	})
}
