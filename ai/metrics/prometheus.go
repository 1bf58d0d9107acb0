// Package metrics provides Prometheus metrics export for embedcore.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "embedcore"

// breakerStateValues maps breaker state names to gauge values.
var breakerStateValues = map[string]float64{
	"closed":    0,
	"open":      1,
	"half_open": 2,
}

// PrometheusExporter exports embedcore metrics in Prometheus format.
// It implements the recorder interfaces of the cache, resilience,
// retrieval and pipeline packages.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Resilience metrics
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	retries            *prometheus.CounterVec

	// Storage metrics
	storeWrites   *prometheus.CounterVec
	searchLatency *prometheus.HistogramVec

	pipelineResults *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	// Cache metrics
	e.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache"},
	)

	e.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// Resilience metrics
	e.breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"policy"},
	)

	e.breakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"policy", "from", "to"},
	)

	e.retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Total number of retried calls",
		},
		[]string{"policy"},
	)

	// Storage metrics
	e.storeWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "Total number of embedding writes by outcome",
		},
		[]string{"outcome"},
	)

	e.searchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "search_latency_seconds",
			Help:      "Similarity search latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"backend"},
	)

	e.pipelineResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "results_total",
			Help:      "Total number of processed messages by status",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		e.cacheHits,
		e.cacheMisses,
		e.breakerState,
		e.breakerTransitions,
		e.retries,
		e.storeWrites,
		e.searchLatency,
		e.pipelineResults,
	)

	return e
}

// RecordCacheHit records a cache hit.
func (e *PrometheusExporter) RecordCacheHit(cache string) {
	e.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss.
func (e *PrometheusExporter) RecordCacheMiss(cache string) {
	e.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordBreakerTransition records a breaker state change and updates the
// state gauge.
func (e *PrometheusExporter) RecordBreakerTransition(policy, from, to string) {
	e.breakerTransitions.WithLabelValues(policy, from, to).Inc()
	if v, ok := breakerStateValues[to]; ok {
		e.breakerState.WithLabelValues(policy).Set(v)
	}
}

// RecordRetry records one retry of a call.
func (e *PrometheusExporter) RecordRetry(policy string) {
	e.retries.WithLabelValues(policy).Inc()
}

// RecordStoreWrite records an embedding write outcome.
func (e *PrometheusExporter) RecordStoreWrite(outcome string) {
	e.storeWrites.WithLabelValues(outcome).Inc()
}

// RecordSearch records the latency of a similarity search.
func (e *PrometheusExporter) RecordSearch(backend string, latency time.Duration) {
	e.searchLatency.WithLabelValues(backend).Observe(latency.Seconds())
}

// RecordPipelineResult records a processed message.
func (e *PrometheusExporter) RecordPipelineResult(status string) {
	e.pipelineResults.WithLabelValues(status).Inc()
}

// GetHandler returns the HTTP handler for Prometheus metrics.
func (e *PrometheusExporter) GetHandler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
