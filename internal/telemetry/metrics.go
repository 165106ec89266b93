// Package telemetry records retrieval metrics. Everything stays in the
// process: Prometheus series are served on /metrics and query statistics
// are kept in memory.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements search.Recorder on a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	retrieveTotal    *prometheus.CounterVec
	retrieveDuration prometheus.Histogram
	retrieveVariants prometheus.Histogram
	variantsDropped  *prometheus.CounterVec
	lexicalActive    prometheus.Gauge
	indexChunks      prometheus.Gauge

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queries *QueryStats
}

// NewMetrics registers the retrieval series. queries may be nil.
func NewMetrics(queries *QueryStats) *Metrics {
	registry := prometheus.NewRegistry()

	retrieveTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutor",
			Name:      "retrieve_total",
			Help:      "Total retrieve calls by outcome.",
		},
		[]string{"outcome"},
	)
	retrieveDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tutor",
			Name:      "retrieve_duration_seconds",
			Help:      "Retrieve call duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	retrieveVariants := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tutor",
			Name:      "retrieve_variants",
			Help:      "Query variants that contributed to a retrieve call.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)
	variantsDropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutor",
			Name:      "variants_dropped_total",
			Help:      "Expansion variants left out of the merge, by reason.",
		},
		[]string{"reason"},
	)
	lexicalActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tutor",
			Name:      "lexical_active",
			Help:      "1 when the loaded index has a lexical ranker.",
		},
	)
	indexChunks := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tutor",
			Name:      "index_chunks",
			Help:      "Chunks in the loaded index.",
		},
	)

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tutor",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tutor",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
		},
	)

	registry.MustRegister(
		retrieveTotal,
		retrieveDuration,
		retrieveVariants,
		variantsDropped,
		lexicalActive,
		indexChunks,
		requestTotal,
		requestDuration,
		requestInFlight,
	)

	return &Metrics{
		registry:         registry,
		retrieveTotal:    retrieveTotal,
		retrieveDuration: retrieveDuration,
		retrieveVariants: retrieveVariants,
		variantsDropped:  variantsDropped,
		lexicalActive:    lexicalActive,
		indexChunks:      indexChunks,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		queries:          queries,
	}
}

// ObserveRetrieve counts one retrieve call.
func (m *Metrics) ObserveRetrieve(outcome string, d time.Duration, variants int) {
	if m == nil {
		return
	}
	m.retrieveTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.retrieveDuration.Observe(d.Seconds())
	}
	if variants > 0 {
		m.retrieveVariants.Observe(float64(variants))
	}
}

// ObserveQuery forwards the query to the in-memory statistics.
func (m *Metrics) ObserveQuery(query string, results int, d time.Duration) {
	if m == nil || m.queries == nil {
		return
	}
	m.queries.Record(QueryEvent{
		Query:       query,
		ResultCount: results,
		Latency:     d,
		Timestamp:   time.Now(),
	})
}

// VariantDropped counts a variant left out of the merge.
func (m *Metrics) VariantDropped(reason string) {
	if m == nil {
		return
	}
	m.variantsDropped.WithLabelValues(reason).Inc()
}

// IndexState records the loaded index shape.
func (m *Metrics) IndexState(chunks int, lexical bool) {
	if m == nil {
		return
	}
	m.indexChunks.Set(float64(chunks))
	if lexical {
		m.lexicalActive.Set(1)
	} else {
		m.lexicalActive.Set(0)
	}
}

// Queries returns the query statistics, possibly nil.
func (m *Metrics) Queries() *QueryStats {
	if m == nil {
		return nil
	}
	return m.queries
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
