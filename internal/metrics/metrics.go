// Package metrics exposes Prometheus collectors for the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "campusqa"

// Metrics holds all application metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Request metrics
	Requests       *prometheus.CounterVec // labels: outcome
	RequestLatency *prometheus.HistogramVec

	// Cache metrics
	CacheLookups *prometheus.CounterVec // labels: namespace, result
	CacheErrors  *prometheus.CounterVec // labels: op

	// Model metrics
	ModelAttempts *prometheus.CounterVec // labels: provider, result

	// Context metrics
	ContextFetchLatency *prometheus.HistogramVec // labels: source
	ContextFragments    *prometheus.HistogramVec // labels: source

	// Admission metrics
	RateLimited prometheus.Counter
	InFlight    prometheus.Gauge

	// Bus metrics
	BusPublished     *prometheus.CounterVec // labels: topic, result
	BusLatency       *prometheus.HistogramVec
	AnswersGenerated *prometheus.CounterVec // labels: namespace, degraded

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration *prometheus.HistogramVec // labels: method, route
}

// New creates a metrics instance with its own registry, including Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	latencyBuckets := []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 90}

	m := &Metrics{
		registry: reg,

		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Answered requests by outcome.",
		}, []string{"outcome"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request handling latency.",
			Buckets:   latencyBuckets,
		}, []string{"outcome"}),

		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by namespace and result.",
		}, []string{"namespace", "result"}),
		CacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Cache backend failures by operation.",
		}, []string{"op"}),

		ModelAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_attempts_total",
			Help:      "Language model calls by provider and result.",
		}, []string{"provider", "result"}),

		ContextFetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_fetch_duration_seconds",
			Help:      "Context source fetch latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"source"}),
		ContextFragments: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_fragments",
			Help:      "Fragments returned per context source.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}, []string{"source"}),

		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Requests currently being processed.",
		}),

		BusPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_published_total",
			Help:      "Events published to the bus by topic and result.",
		}, []string{"topic", "result"}),
		BusLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bus_publish_duration_seconds",
			Help:      "Bus publish latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"topic"}),
		AnswersGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_generated_total",
			Help:      "Answer events consumed from the bus by namespace.",
		}, []string{"namespace", "degraded"}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   latencyBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.Requests, m.RequestLatency,
		m.CacheLookups, m.CacheErrors,
		m.ModelAttempts,
		m.ContextFetchLatency, m.ContextFragments,
		m.RateLimited, m.InFlight,
		m.BusPublished, m.BusLatency, m.AnswersGenerated,
		m.HTTPRequests, m.HTTPDuration,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest records a finished request. outcome is "ok" or an error code.
func (m *Metrics) RecordRequest(outcome string, d time.Duration) {
	m.Requests.WithLabelValues(outcome).Inc()
	m.RequestLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordCacheHit implements cache.Metrics.
func (m *Metrics) RecordCacheHit(namespace string) {
	m.CacheLookups.WithLabelValues(namespace, "hit").Inc()
}

// RecordCacheMiss implements cache.Metrics.
func (m *Metrics) RecordCacheMiss(namespace string) {
	m.CacheLookups.WithLabelValues(namespace, "miss").Inc()
}

// RecordCacheError implements cache.Metrics.
func (m *Metrics) RecordCacheError(op string) {
	m.CacheErrors.WithLabelValues(op).Inc()
}

// RecordModelAttempt implements answer.Metrics.
func (m *Metrics) RecordModelAttempt(provider, result string) {
	m.ModelAttempts.WithLabelValues(provider, result).Inc()
}

// RecordContextFetch records one context source call.
func (m *Metrics) RecordContextFetch(source string, fragments int, d time.Duration) {
	m.ContextFetchLatency.WithLabelValues(source).Observe(d.Seconds())
	m.ContextFragments.WithLabelValues(source).Observe(float64(fragments))
}

// RecordRateLimited implements middleware.RateLimitMetrics.
func (m *Metrics) RecordRateLimited() {
	m.RateLimited.Inc()
}

// RecordBusPublish implements bus.MetricsRecorder.
func (m *Metrics) RecordBusPublish(topic string, latency time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BusPublished.WithLabelValues(topic, result).Inc()
	m.BusLatency.WithLabelValues(topic).Observe(latency.Seconds())
}

// RecordAnswerGenerated implements bus.AnswerStats.
func (m *Metrics) RecordAnswerGenerated(namespace string, degraded bool) {
	m.AnswersGenerated.WithLabelValues(namespace, strconv.FormatBool(degraded)).Inc()
}
