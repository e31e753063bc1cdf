// Package metrics defines the Prometheus collectors of the rate engine
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. Each instance owns its registry so tests
// can build as many services as they like.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RemoteFetchesTotal       *prometheus.CounterVec
	CacheLookupsTotal        *prometheus.CounterVec
	FallbacksTotal           *prometheus.CounterVec
	BackgroundRefreshTotal   *prometheus.CounterVec
	PersistenceFailuresTotal prometheus.Counter
}

// NewMetrics creates and registers the collectors
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),

		RemoteFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_source_fetches_total",
				Help: "Rate source calls by source, operation and outcome",
			},
			[]string{"source", "op", "outcome"},
		),

		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_cache_lookups_total",
				Help: "Cache lookups by cache and result (fresh, stale, expired, miss)",
			},
			[]string{"cache", "result"},
		),

		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_fallbacks_total",
				Help: "Responses served from a fallback tier",
			},
			[]string{"kind"},
		),

		BackgroundRefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_background_refresh_total",
				Help: "Background refresh attempts by outcome",
			},
			[]string{"outcome"},
		),

		PersistenceFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_persistence_failures_total",
				Help: "Failed writes of cache snapshots to durable storage",
			},
		),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Outcome labels a call result
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
