package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
	"github.com/damon-houk/fx-rate-engine/internal/domain/repository"
	"github.com/dgraph-io/badger/v3"
)

// Fixed keys of the two persisted records
const (
	latestRatesKey = "rates:latest"
	historyKey     = "rates:history"
)

// BadgerSnapshotRepository implements the snapshot repository interface using BadgerDB
type BadgerSnapshotRepository struct {
	db *badger.DB
}

var _ repository.RateSnapshotRepository = (*BadgerSnapshotRepository)(nil)

// NewBadgerSnapshotRepository creates a new BadgerDB snapshot repository
func NewBadgerSnapshotRepository(db *badger.DB) *BadgerSnapshotRepository {
	return &BadgerSnapshotRepository{db: db}
}

// LoadLatest retrieves the latest-rates record, or nil if none was saved
func (r *BadgerSnapshotRepository) LoadLatest(ctx context.Context) (*entity.CachedRates, error) {
	var rates entity.CachedRates

	found, err := r.load(latestRatesKey, &rates)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest rates: %w", err)
	}
	if !found {
		return nil, nil
	}

	return &rates, nil
}

// SaveLatest replaces the latest-rates record
func (r *BadgerSnapshotRepository) SaveLatest(ctx context.Context, rates *entity.CachedRates) error {
	if err := r.save(latestRatesKey, rates); err != nil {
		return fmt.Errorf("failed to store latest rates: %w", err)
	}
	return nil
}

// LoadHistory retrieves the pair-key -> series record, empty if none was saved
func (r *BadgerSnapshotRepository) LoadHistory(ctx context.Context) (map[string]*entity.CachedHistoricalSeries, error) {
	history := make(map[string]*entity.CachedHistoricalSeries)

	if _, err := r.load(historyKey, &history); err != nil {
		return nil, fmt.Errorf("failed to load historical rates: %w", err)
	}

	return history, nil
}

// SaveHistory replaces the pair-key -> series record
func (r *BadgerSnapshotRepository) SaveHistory(ctx context.Context, history map[string]*entity.CachedHistoricalSeries) error {
	if err := r.save(historyKey, history); err != nil {
		return fmt.Errorf("failed to store historical rates: %w", err)
	}
	return nil
}

// Clear removes both records
func (r *BadgerSnapshotRepository) Clear(ctx context.Context) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{latestRatesKey, historyKey} {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return fmt.Errorf("failed to clear rate snapshots: %w", err)
	}
	return nil
}

func (r *BadgerSnapshotRepository) save(key string, value interface{}) error {
	// Serialize snapshot to JSON
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (r *BadgerSnapshotRepository) load(key string, out interface{}) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}
