package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval pipeline metrics.
var (
	RetrieveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "retrieve_duration_seconds",
			Help:      "End-to-end retrieve call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)

	RetrieveResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "retrieve_results",
			Help:      "Number of passages returned per retrieve call",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		},
	)

	IndexSearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "index_search_duration_seconds",
			Help:      "Index store search duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"backend", "strategy"},
	)

	// StageDegradations counts optional stages that fell back to pass-through.
	StageDegradations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stage_degradations_total",
			Help:      "Optional pipeline stages that degraded to pass-through",
		},
		[]string{"stage", "reason"},
	)

	RerankRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rerank_requests_total",
			Help:      "Re-rank provider requests",
		},
		[]string{"model", "status"},
	)

	RewriteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rewrite_requests_total",
			Help:      "Query rewrite provider requests",
		},
		[]string{"model", "status"},
	)

	// ResilienceEvents counts retries and circuit breaker transitions per operation.
	ResilienceEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "resilience_events_total",
			Help:      "Retry attempts and circuit breaker state changes",
		},
		[]string{"operation", "event"},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers retrieval pipeline metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		RetrieveDuration,
		RetrieveResults,
		IndexSearchDuration,
		StageDegradations,
		RerankRequests,
		RewriteRequests,
		ResilienceEvents,
	)
	retrievalMetricsRegistered = true
}
