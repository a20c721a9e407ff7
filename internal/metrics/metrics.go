// Package metrics provides Prometheus instrumentation for the featflip server.
//
// All metrics are registered in a custom [prometheus.Registry] (not the global
// default) so that only featflip metrics appear on the /metrics endpoint.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors used by the featflip server.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ChecksTotal         *prometheus.CounterVec
	AutoCreatesTotal    prometheus.Counter
	StoreOpDuration     *prometheus.HistogramVec
	FeatureCount        prometheus.Gauge
	AuthFailuresTotal   prometheus.Counter
}

// New creates and registers all featflip metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "featflip_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "featflip_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "featflip_checks_total",
			Help: "Total number of feature checks.",
		}, []string{"result"}),

		AutoCreatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "featflip_auto_creates_total",
			Help: "Total number of features created lazily on first access.",
		}),

		StoreOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "featflip_store_op_duration_seconds",
			Help:    "Feature store operation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),

		FeatureCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "featflip_features",
			Help: "Number of features currently held in the store.",
		}),

		AuthFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "featflip_auth_failures_total",
			Help: "Total number of failed authentication attempts.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ChecksTotal,
		m.AutoCreatesTotal,
		m.StoreOpDuration,
		m.FeatureCount,
		m.AuthFailuresTotal,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordCheck increments the check counter with the given result.
func (m *Metrics) RecordCheck(result bool) {
	m.ChecksTotal.WithLabelValues(strconv.FormatBool(result)).Inc()
}

// RecordAutoCreate increments the lazy-creation counter.
func (m *Metrics) RecordAutoCreate() {
	m.AutoCreatesTotal.Inc()
}

// ObserveStoreOp records the latency of one feature store operation. Its
// signature matches store.ObserveFunc so it can be passed to store.Instrument
// directly.
func (m *Metrics) ObserveStoreOp(op string, d time.Duration) {
	m.StoreOpDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetFeatureCount updates the feature count gauge.
func (m *Metrics) SetFeatureCount(n int) {
	m.FeatureCount.Set(float64(n))
}
