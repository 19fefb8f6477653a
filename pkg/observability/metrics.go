// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for the comprehensive query pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueryMetrics holds all Prometheus metrics for query processing.
type QueryMetrics struct {
	// Batch metrics
	QueriesTotal     *prometheus.CounterVec
	QuerySeconds     *prometheus.HistogramVec
	RequestsPerQuery *prometheus.HistogramVec

	// Sub-request metrics
	SubRequestsTotal  *prometheus.CounterVec
	SubRequestSeconds *prometheus.HistogramVec
	SubRequestRetries *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// DefaultQueryMetrics creates metrics on the default registerer.
func DefaultQueryMetrics() *QueryMetrics {
	return NewQueryMetrics(prometheus.DefaultRegisterer)
}

// NewQueryMetrics creates a new set of query metrics.
func NewQueryMetrics(reg prometheus.Registerer) *QueryMetrics {
	factory := promauto.With(reg)

	return &QueryMetrics{
		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epctl_queries_total",
				Help: "Total comprehensive queries processed",
			},
			[]string{"client_id", "status"},
		),
		QuerySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "epctl_query_seconds",
				Help:    "End-to-end comprehensive query latency",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"client_id"},
		),
		RequestsPerQuery: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "epctl_requests_per_query",
				Help:    "Sub-requests decomposed from one query",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"client_id"},
		),
		SubRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epctl_sub_requests_total",
				Help: "Total gateway sub-requests by query type and outcome",
			},
			[]string{"query_type", "tool", "status"},
		),
		SubRequestSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "epctl_sub_request_seconds",
				Help:    "Gateway sub-request latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"query_type", "tool"},
		),
		SubRequestRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epctl_sub_request_retries_total",
				Help: "Retry attempts for gateway sub-requests",
			},
			[]string{"query_type", "code"},
		),
		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epctl_result_cache_hits_total",
				Help: "Result cache hits",
			},
			[]string{"tool"},
		),
		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epctl_result_cache_misses_total",
				Help: "Result cache misses",
			},
			[]string{"tool"},
		),
	}
}
