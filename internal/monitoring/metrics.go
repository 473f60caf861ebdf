// Package monitoring exposes Prometheus metrics and dependency health checks
// for the carbon service.
package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "carbon"

// Cache layers.
const (
	LayerFactor = "factor"
	LayerResult = "result"
)

// Lookup results and call outcomes.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"

	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
	OutcomeRejected = "rejected"
	OutcomeUnparsed = "unparsed"
)

// Metrics holds the Prometheus collectors for the service. A nil *Metrics is
// valid and records nothing, which lets CLI commands skip registration.
type Metrics struct {
	Calculations        *prometheus.CounterVec   // labels: variant, outcome
	CalculationDuration *prometheus.HistogramVec // labels: variant
	CacheLookups        *prometheus.CounterVec   // labels: layer, result
	CacheWriteErrors    *prometheus.CounterVec   // labels: layer
	FactorStoreReads    *prometheus.CounterVec   // labels: outcome
	AuditWrites         *prometheus.CounterVec   // labels: sink, outcome
	Extractions         *prometheus.CounterVec   // labels: outcome
	HTTPRequests        *prometheus.CounterVec   // labels: route, method, status
	HTTPDuration        *prometheus.HistogramVec // labels: route
	DependencyUp        *prometheus.GaugeVec     // labels: dependency
}

func newMetrics() *Metrics {
	return &Metrics{
		Calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Calculations by variant and outcome.",
		}, []string{"variant", "outcome"}),
		CalculationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calculation_duration_seconds",
			Help:      "End-to-end calculation latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"variant"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Fast-cache lookups by layer and result.",
		}, []string{"layer", "result"}),
		CacheWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_write_errors_total",
			Help:      "Fast-cache writes that failed and were ignored.",
		}, []string{"layer"}),
		FactorStoreReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "factor_store_reads_total",
			Help:      "Durable emission factor reads by outcome.",
		}, []string{"outcome"}),
		AuditWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_writes_total",
			Help:      "Audit log writes by sink and outcome.",
		}, []string{"sink", "outcome"}),
		Extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_requests_total",
			Help:      "Natural-language extraction calls by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		DependencyUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dependency_up",
			Help:      "1 when the last health probe of a dependency succeeded.",
		}, []string{"dependency"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered metrics so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Calculations,
		m.CalculationDuration,
		m.CacheLookups,
		m.CacheWriteErrors,
		m.FactorStoreReads,
		m.AuditWrites,
		m.Extractions,
		m.HTTPRequests,
		m.HTTPDuration,
		m.DependencyUp,
	}
}

// ObserveCalculation records one finished calculation.
func (m *Metrics) ObserveCalculation(variant, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Calculations.WithLabelValues(variant, outcome).Inc()
	m.CalculationDuration.WithLabelValues(variant).Observe(d.Seconds())
}

// ObserveCacheLookup records a fast-cache read.
func (m *Metrics) ObserveCacheLookup(layer, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(layer, result).Inc()
}

// ObserveCacheWriteError records a swallowed fast-cache write failure.
func (m *Metrics) ObserveCacheWriteError(layer string) {
	if m == nil {
		return
	}
	m.CacheWriteErrors.WithLabelValues(layer).Inc()
}

// ObserveFactorRead records a durable factor lookup.
func (m *Metrics) ObserveFactorRead(outcome string) {
	if m == nil {
		return
	}
	m.FactorStoreReads.WithLabelValues(outcome).Inc()
}

// ObserveAuditWrite records an audit write attempt.
func (m *Metrics) ObserveAuditWrite(sink, outcome string) {
	if m == nil {
		return
	}
	m.AuditWrites.WithLabelValues(sink, outcome).Inc()
}

// ObserveExtraction records an extractor call.
func (m *Metrics) ObserveExtraction(outcome string) {
	if m == nil {
		return
	}
	m.Extractions.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records a served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// SetDependencyUp records the latest probe result for a dependency.
func (m *Metrics) SetDependencyUp(dependency string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.DependencyUp.WithLabelValues(dependency).Set(v)
}
