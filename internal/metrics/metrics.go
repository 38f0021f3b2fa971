package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors exported by the price service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RemoteRequestsTotal   *prometheus.CounterVec
	RemoteRequestDuration *prometheus.HistogramVec

	CacheHitsTotal          prometheus.Counter
	CacheMissesTotal        prometheus.Counter
	CacheRefreshErrorsTotal prometheus.Counter

	HTTPRequestsTotal *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RemoteRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_remote_requests_total",
				Help: "Total number of requests sent to the remote price API",
			},
			[]string{"endpoint", "status_code"},
		),

		RemoteRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "price_remote_request_duration_seconds",
				Help:    "Remote price API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),

		CacheHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "price_cache_hits_total",
				Help: "Total number of lookups served from the price cache",
			},
		),

		CacheMissesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "price_cache_misses_total",
				Help: "Total number of lookups that required a refresh",
			},
		),

		CacheRefreshErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "price_cache_refresh_errors_total",
				Help: "Total number of failed cache refreshes",
			},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status_code"},
		),
	}
}

// ObserveRemote records one remote call. statusCode is 0 when no response was received.
func (m *Metrics) ObserveRemote(endpoint string, statusCode int, took time.Duration) {
	if m == nil {
		return
	}
	m.RemoteRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	m.RemoteRequestDuration.WithLabelValues(endpoint).Observe(took.Seconds())
}

func (m *Metrics) CacheHit(n int) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Add(float64(n))
}

func (m *Metrics) CacheMiss(n int) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Add(float64(n))
}

func (m *Metrics) CacheRefreshError() {
	if m == nil {
		return
	}
	m.CacheRefreshErrorsTotal.Inc()
}

func (m *Metrics) HTTPRequest(path, method string, statusCode int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(path, method, strconv.Itoa(statusCode)).Inc()
}
