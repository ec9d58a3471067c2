// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whattoeat_http_requests_total",
			Help: "Total number of HTTP requests by route pattern",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whattoeat_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Recommendation pipeline
	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whattoeat_recommendations_total",
			Help: "Recommendation requests by outcome (ok, empty, invalid, error)",
		},
		[]string{"outcome"},
	)

	CandidateSetSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whattoeat_candidate_set_size",
			Help:    "Number of candidates returned by the geo-filter stage",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		},
	)

	ResultSetSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whattoeat_result_set_size",
			Help:    "Number of ranked restaurants returned to the client",
			Buckets: []float64{0, 1, 5, 10, 20},
		},
	)

	ScoringDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whattoeat_scoring_duration_seconds",
			Help:    "Time spent scoring and ranking a candidate set",
			Buckets: []float64{.00001, .0001, .0005, .001, .005, .01},
		},
	)

	// Store
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whattoeat_store_query_duration_seconds",
			Help:    "Duration of catalog store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whattoeat_store_query_errors_total",
			Help: "Total number of failed catalog store queries",
		},
		[]string{"store", "operation"},
	)

	StoreRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whattoeat_store_retries_total",
			Help: "Retries of transient catalog store failures",
		},
		[]string{"operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "whattoeat_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whattoeat_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Ingest
	IngestRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whattoeat_ingest_rows_total",
			Help: "Restaurants processed by catalog loads, by result",
		},
		[]string{"result"},
	)
)

// RecordAPIRequest records one served HTTP request.
func RecordAPIRequest(method, route string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordStoreQuery records a store query and its failure, if any.
func RecordStoreQuery(store, operation string, duration time.Duration, err error) {
	StoreQueryDuration.WithLabelValues(store, operation).Observe(duration.Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(store, operation).Inc()
	}
}

// RecordRecommendation records the outcome of one pipeline run.
func RecordRecommendation(outcome string, candidates, results int) {
	Recommendations.WithLabelValues(outcome).Inc()
	if outcome == "ok" || outcome == "empty" {
		CandidateSetSize.Observe(float64(candidates))
		ResultSetSize.Observe(float64(results))
	}
}
