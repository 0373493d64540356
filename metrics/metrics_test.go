package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigila/cache"
)

var _ cache.Observer = (*Metrics)(nil)

func TestCacheCounters(t *testing.T) {
	m := New()

	m.Hit("bookings")
	m.Hit("bookings")
	m.Miss("bookings")
	m.FetchError("sales", cache.Transport(errors.New("dial tcp")))
	m.FetchError("sales", cache.NotFound("s-1"))
	m.Discard("guests")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheReads.WithLabelValues("bookings", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheReads.WithLabelValues("bookings", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheErrors.WithLabelValues("sales", "transport")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheErrors.WithLabelValues("sales", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheDiscards.WithLabelValues("guests")))
}

func TestHandlerExposesDecisions(t *testing.T) {
	m := New()
	m.Decided("sales", "deny")
	m.ObserveRequest(http.MethodGet, http.StatusFound, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `vigila_guard_decisions_total{decision="deny",route="sales"} 1`)
	assert.Contains(t, body, `vigila_http_requests_total{method="GET",status="302"} 1`)
}
