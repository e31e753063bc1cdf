// internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
	"github.com/damon-houk/fx-rate-engine/internal/domain/repository"
	"github.com/damon-houk/fx-rate-engine/internal/domain/service"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/logger"
	"github.com/stretchr/testify/mock"
)

// MockRateSource mocks the RateSource interface
type MockRateSource struct {
	mock.Mock
}

var _ service.RateSource = (*MockRateSource)(nil)

func (m *MockRateSource) Name() string {
	return "remote"
}

func (m *MockRateSource) FetchLatest(ctx context.Context, base string) (entity.RateTable, error) {
	args := m.Called(ctx, base)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(entity.RateTable), args.Error(1)
}

func (m *MockRateSource) FetchDay(ctx context.Context, from, to string, day time.Time) (entity.HistoricalPoint, error) {
	args := m.Called(ctx, from, to, day)
	return args.Get(0).(entity.HistoricalPoint), args.Error(1)
}

func (m *MockRateSource) FetchRange(ctx context.Context, from, to string, start, end time.Time) ([]entity.HistoricalPoint, error) {
	args := m.Called(ctx, from, to, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.HistoricalPoint), args.Error(1)
}

// MockSnapshotRepository mocks the RateSnapshotRepository interface
type MockSnapshotRepository struct {
	mock.Mock
}

var _ repository.RateSnapshotRepository = (*MockSnapshotRepository)(nil)

func (m *MockSnapshotRepository) LoadLatest(ctx context.Context) (*entity.CachedRates, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.CachedRates), args.Error(1)
}

func (m *MockSnapshotRepository) SaveLatest(ctx context.Context, rates *entity.CachedRates) error {
	args := m.Called(ctx, rates)
	return args.Error(0)
}

func (m *MockSnapshotRepository) LoadHistory(ctx context.Context) (map[string]*entity.CachedHistoricalSeries, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*entity.CachedHistoricalSeries), args.Error(1)
}

func (m *MockSnapshotRepository) SaveHistory(ctx context.Context, history map[string]*entity.CachedHistoricalSeries) error {
	args := m.Called(ctx, history)
	return args.Error(0)
}

func (m *MockSnapshotRepository) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockLogger mocks the logger interface
type MockLogger struct {
	mock.Mock
}

var _ logger.Logger = (*MockLogger)(nil)

func (m *MockLogger) Debug(msg string, fields map[string]interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) Info(msg string, fields map[string]interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) Warn(msg string, fields map[string]interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) Error(msg string, fields map[string]interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) Fatal(msg string, fields map[string]interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) WithField(key string, value interface{}) logger.Logger {
	m.Called(key, value)
	return m
}
