// Package repository internal/domain/repository/rate_snapshot_repository.go
package repository

import (
	"context"

	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
)

// RateSnapshotRepository defines the interface for durable rate cache storage
type RateSnapshotRepository interface {
	// LoadLatest returns the persisted latest-rates snapshot, or nil if none was saved
	LoadLatest(ctx context.Context) (*entity.CachedRates, error)

	// SaveLatest replaces the persisted latest-rates snapshot
	SaveLatest(ctx context.Context, rates *entity.CachedRates) error

	// LoadHistory returns the persisted pair-key -> series mapping, empty if none was saved
	LoadHistory(ctx context.Context) (map[string]*entity.CachedHistoricalSeries, error)

	// SaveHistory replaces the persisted pair-key -> series mapping
	SaveHistory(ctx context.Context, history map[string]*entity.CachedHistoricalSeries) error

	// Clear removes both records
	Clear(ctx context.Context) error
}
