package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Two instances must not collide on registration
	m := NewMetrics()
	_ = NewMetrics()

	m.RemoteFetchesTotal.WithLabelValues("remote", "latest", Outcome(nil)).Inc()
	m.RemoteFetchesTotal.WithLabelValues("remote", "latest", Outcome(errors.New("boom"))).Inc()
	m.RemoteFetchesTotal.WithLabelValues("remote", "latest", "error").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteFetchesTotal.WithLabelValues("remote", "latest", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RemoteFetchesTotal.WithLabelValues("remote", "latest", "error")))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rate_source_fetches_total")
}
