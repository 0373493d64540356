package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vigila/cache"
)

const namespace = "vigila"

// Metrics holds the collectors of one process on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	cacheReads    *prometheus.CounterVec
	cacheErrors   *prometheus.CounterVec
	cacheDiscards *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		cacheReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "reads_total",
				Help:      "Store reads by domain and whether they were served from memory.",
			},
			[]string{"domain", "result"},
		),
		cacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "fetch_errors_total",
				Help:      "Failed gateway fetches by domain and error kind.",
			},
			[]string{"domain", "kind"},
		),
		cacheDiscards: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "discarded_fetches_total",
				Help:      "Fetch results dropped because the store changed while they were in flight.",
			},
			[]string{"domain"},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "guard",
				Name:      "decisions_total",
				Help:      "Authorization decisions by route and outcome.",
			},
			[]string{"route", "decision"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"method"},
		),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cacheReads,
		m.cacheErrors,
		m.cacheDiscards,
		m.decisions,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Hit implements cache.Observer.
func (m *Metrics) Hit(domain string) {
	m.cacheReads.WithLabelValues(domain, "hit").Inc()
}

// Miss implements cache.Observer.
func (m *Metrics) Miss(domain string) {
	m.cacheReads.WithLabelValues(domain, "miss").Inc()
}

// FetchError implements cache.Observer.
func (m *Metrics) FetchError(domain string, err error) {
	m.cacheErrors.WithLabelValues(domain, errorKind(err)).Inc()
}

// Discard implements cache.Observer.
func (m *Metrics) Discard(domain string) {
	m.cacheDiscards.WithLabelValues(domain).Inc()
}

// Decided implements guard.Observer.
func (m *Metrics) Decided(route, decision string) {
	m.decisions.WithLabelValues(route, decision).Inc()
}

// ObserveRequest records a finished HTTP request.
func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return "not_found"
	case errors.Is(err, cache.ErrTransport):
		return "transport"
	default:
		return "other"
	}
}
