package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector holds the Prometheus metrics a Folder emits. Grounded on
// ferg-cod3s-conexus's internal/observability.MetricsCollector, trimmed to
// the operations this package's FolderLifecycleService and Folder actually
// perform: scanning/indexing a folder and serving fused search.
type MetricsCollector struct {
	SearchRequestsTotal  *prometheus.CounterVec
	SearchDuration       *prometheus.HistogramVec
	SearchResultsPerCall prometheus.Histogram

	IndexRunsTotal    *prometheus.CounterVec
	IndexDuration     prometheus.Histogram
	IndexedFilesTotal prometheus.Counter
	IndexErrorsTotal  *prometheus.CounterVec

	EmbedRequestsTotal *prometheus.CounterVec
	EmbedDuration      *prometheus.HistogramVec

	CircuitBreakerState *prometheus.GaugeVec
}

// NewMetricsCollector registers every metric against the default Prometheus
// registry.
func NewMetricsCollector(namespace string) *MetricsCollector {
	return NewMetricsCollectorWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry registers against reg, so tests can use a
// throwaway *prometheus.Registry instead of mutating package-global state.
func NewMetricsCollectorWithRegistry(namespace string, reg prometheus.Registerer) *MetricsCollector {
	if namespace == "" {
		namespace = "folderindex"
	}
	f := promauto.With(reg)

	return &MetricsCollector{
		SearchRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "search_requests_total",
			Help: "Total fused search queries served.",
		}, []string{"outcome"}),
		SearchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "search_duration_seconds",
			Help:    "Fused search latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		SearchResultsPerCall: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "search_results_per_call",
			Help:    "Number of results returned per search call.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),

		IndexRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "index_runs_total",
			Help: "Total StartIndexing runs, by outcome.",
		}, []string{"outcome"}),
		IndexDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "index_duration_seconds",
			Help:    "Wall-clock time of a full StartIndexing run.",
			Buckets:  prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		IndexedFilesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "indexed_files_total",
			Help: "Total files successfully processed by the orchestrator.",
		}),
		IndexErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "index_errors_total",
			Help: "Total per-file indexing failures, by cause.",
		}, []string{"kind"}),

		EmbedRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "embed_requests_total",
			Help: "Total embedding backend calls, by backend and outcome.",
		}, []string{"backend", "outcome"}),
		EmbedDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "embed_duration_seconds",
			Help:    "Embedding backend call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),

		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state",
			Help: "0=closed, 1=half-open, 2=open, per embedding backend circuit.",
		}, []string{"backend"}),
	}
}

// ObserveSearch records one Folder.Search call.
func (m *MetricsCollector) ObserveSearch(d time.Duration, resultCount int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.SearchRequestsTotal.WithLabelValues(outcome).Inc()
	m.SearchDuration.WithLabelValues(outcome).Observe(d.Seconds())
	if err == nil {
		m.SearchResultsPerCall.Observe(float64(resultCount))
	}
}

// ObserveIndex records one Folder.Index run.
func (m *MetricsCollector) ObserveIndex(d time.Duration, filesIndexed int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.IndexRunsTotal.WithLabelValues(outcome).Inc()
	m.IndexDuration.Observe(d.Seconds())
	m.IndexedFilesTotal.Add(float64(filesIndexed))
}
