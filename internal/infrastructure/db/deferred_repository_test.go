// internal/infrastructure/db/deferred_repository_test.go
package db

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/logger"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/metrics"
	"github.com/damon-houk/fx-rate-engine/internal/mocks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func quietLogger() logger.Logger {
	return logger.NewJSONLogger(io.Discard, logger.InfoLevel)
}

func TestDeferredRepository(t *testing.T) {
	ctx := context.Background()
	store := NewBadgerSnapshotRepository(openTestDB(t))
	repo := NewDeferredRepository(store, quietLogger(), metrics.NewMetrics())

	first := testRates(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))
	second := testRates(time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC))
	history := testHistory()

	t.Run("Newest snapshot wins", func(t *testing.T) {
		require.NoError(t, repo.SaveLatest(ctx, first))
		require.NoError(t, repo.SaveLatest(ctx, second))
		require.NoError(t, repo.SaveHistory(ctx, history))
		require.NoError(t, repo.Flush(ctx))

		stored, err := store.LoadLatest(ctx)
		require.NoError(t, err)
		assert.Equal(t, second, stored)

		storedHistory, err := store.LoadHistory(ctx)
		require.NoError(t, err)
		assert.Equal(t, history, storedHistory)
	})

	t.Run("Clear drops pending writes", func(t *testing.T) {
		require.NoError(t, repo.SaveLatest(ctx, first))
		require.NoError(t, repo.Clear(ctx))
		require.NoError(t, repo.Flush(ctx))

		stored, err := repo.LoadLatest(ctx)
		require.NoError(t, err)
		assert.Nil(t, stored)
	})

	t.Run("Close flushes and later saves write through", func(t *testing.T) {
		require.NoError(t, repo.SaveLatest(ctx, first))
		require.NoError(t, repo.Close(ctx))

		stored, err := store.LoadLatest(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, stored)

		require.NoError(t, repo.SaveLatest(ctx, second))
		stored, err = store.LoadLatest(ctx)
		require.NoError(t, err)
		assert.Equal(t, second, stored)

		// Closing twice is harmless
		assert.NoError(t, repo.Close(ctx))
	})
}

func TestDeferredRepositoryWriteFailure(t *testing.T) {
	ctx := context.Background()
	store := new(mocks.MockSnapshotRepository)
	m := metrics.NewMetrics()

	store.On("SaveLatest", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	repo := NewDeferredRepository(store, quietLogger(), m)
	rates := testRates(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))

	require.NoError(t, repo.SaveLatest(ctx, rates))

	// The failed snapshot stays queued, so the final flush reports it again
	err := repo.Close(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.PersistenceFailuresTotal), 1.0)

	store.AssertCalled(t, "SaveLatest", mock.Anything, rates)
}
