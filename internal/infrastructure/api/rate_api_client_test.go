// internal/infrastructure/api/rate_api_client_test.go
package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/damon-houk/fx-rate-engine/internal/domain/service"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *RateAPIClient {
	return NewRateAPIClient(ClientOptions{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		Timeout:      time.Second,
		MaxAttempts:  2,
		RetryBackoff: time.Millisecond,
		Logger:       logger.NewJSONLogger(io.Discard, logger.DebugLevel),
	})
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFetchLatest(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, "USD", r.URL.Query().Get("base"))
		assert.Equal(t, "test-key", r.URL.Query().Get("access_key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"base": "USD",
			"date": "2026-10-15",
			"rates": {"USD": 1, "EUR": 0.9, "GBP": 0.8, "BAD": -3}
		}`))
	}))
	defer mockServer.Close()

	client := newTestClient(mockServer.URL)
	table, err := client.FetchLatest(context.Background(), "USD")

	require.NoError(t, err)
	assert.Equal(t, 1.0, table["USD"])
	assert.Equal(t, 0.9, table["EUR"])
	assert.Equal(t, 0.8, table["GBP"])
	assert.NotContains(t, table, "BAD")
	assert.Equal(t, "remote", client.Name())
}

func TestFetchDay(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2026-10-12", r.URL.Path)
		assert.Equal(t, "GBP", r.URL.Query().Get("base"))

		if r.URL.Query().Get("symbols") != "EUR" {
			w.Write([]byte(`{"success": true, "rates": {}}`))
			return
		}
		w.Write([]byte(`{"success": true, "historical": true, "base": "GBP", "date": "2026-10-12", "rates": {"EUR": 1.16}}`))
	}))
	defer mockServer.Close()

	client := newTestClient(mockServer.URL)

	point, err := client.FetchDay(context.Background(), "GBP", "EUR", day(2026, 10, 12))
	require.NoError(t, err)
	assert.Equal(t, day(2026, 10, 12), point.Date)
	assert.Equal(t, 1.16, point.Rate)

	_, err = client.FetchDay(context.Background(), "GBP", "CHF", day(2026, 10, 12))
	assert.ErrorIs(t, err, service.ErrDecoding)
}

func TestFetchRange(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/timeseries", r.URL.Path)
		assert.Equal(t, "2026-10-10", r.URL.Query().Get("start_date"))
		assert.Equal(t, "2026-10-12", r.URL.Query().Get("end_date"))

		w.Write([]byte(`{
			"success": true,
			"timeseries": true,
			"rates": {
				"2026-10-12": {"EUR": 1.17},
				"2026-10-10": {"EUR": 1.15},
				"2026-10-11": {"EUR": 1.16},
				"2026-10-13": {"EUR": 9.99}
			}
		}`))
	}))
	defer mockServer.Close()

	client := newTestClient(mockServer.URL)
	points, err := client.FetchRange(context.Background(), "GBP", "EUR", day(2026, 10, 10), day(2026, 10, 12))

	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, day(2026, 10, 10), points[0].Date)
	assert.Equal(t, 1.15, points[0].Rate)
	assert.Equal(t, day(2026, 10, 12), points[2].Date)

	_, err = client.FetchRange(context.Background(), "GBP", "EUR", day(2026, 10, 12), day(2026, 10, 10))
	assert.ErrorIs(t, err, service.ErrMalformedRequest)
}

func TestErrorKinds(t *testing.T) {
	ctx := context.Background()

	t.Run("HTTP status", func(t *testing.T) {
		mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"message": "quota exceeded"}`))
		}))
		defer mockServer.Close()

		_, err := newTestClient(mockServer.URL).FetchLatest(ctx, "USD")
		assert.ErrorIs(t, err, service.ErrHTTPStatus)
		assert.Equal(t, http.StatusTooManyRequests, service.StatusCode(err))
		assert.True(t, service.Recoverable(err))
	})

	t.Run("Malformed body", func(t *testing.T) {
		mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>not json</html>`))
		}))
		defer mockServer.Close()

		_, err := newTestClient(mockServer.URL).FetchLatest(ctx, "USD")
		assert.ErrorIs(t, err, service.ErrDecoding)
	})

	t.Run("Provider failure payload", func(t *testing.T) {
		mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success": false, "error": {"code": 101, "type": "invalid_access_key", "info": "bad key"}}`))
		}))
		defer mockServer.Close()

		_, err := newTestClient(mockServer.URL).FetchLatest(ctx, "USD")
		assert.ErrorIs(t, err, service.ErrDecoding)
		assert.Contains(t, err.Error(), "invalid_access_key")
	})

	t.Run("Transport failure is retried", func(t *testing.T) {
		var calls int32
		mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			// Drop the connection without a response
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
		}))
		defer mockServer.Close()

		_, err := newTestClient(mockServer.URL).FetchLatest(ctx, "USD")
		assert.ErrorIs(t, err, service.ErrTransport)
		assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
	})

	t.Run("Timeout is a transport failure", func(t *testing.T) {
		mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer mockServer.Close()

		client := NewRateAPIClient(ClientOptions{
			BaseURL: mockServer.URL,
			Timeout: 20 * time.Millisecond,
			Logger:  logger.NewJSONLogger(io.Discard, logger.InfoLevel),
		})

		_, err := client.FetchLatest(ctx, "USD")
		assert.ErrorIs(t, err, service.ErrTransport)
	})

	t.Run("Malformed request", func(t *testing.T) {
		_, err := newTestClient("not a url").FetchLatest(ctx, "USD")
		assert.ErrorIs(t, err, service.ErrMalformedRequest)
		assert.False(t, service.Recoverable(err))
	})
}
