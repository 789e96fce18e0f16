package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "text2sql_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "text2sql_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	pipelineStageSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "text2sql_pipeline_stage_duration_seconds",
			Help:    "Latency of each query pipeline stage.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	pipelineOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "text2sql_pipeline_outcomes_total",
			Help: "Query pipeline results by outcome.",
		},
		[]string{"outcome"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "text2sql_cache_lookups_total",
			Help: "Query cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	validationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "text2sql_validation_rejections_total",
			Help: "Validator errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		pipelineStageSeconds,
		pipelineOutcomesTotal,
		cacheLookupsTotal,
		validationRejectionsTotal,
	)
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, elapsed time.Duration) {
	pipelineStageSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordOutcome counts a finished pipeline run.
func RecordOutcome(outcome string) {
	pipelineOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup counts a cache hit, miss or error.
func RecordCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordValidationRejection counts one validator error by reason.
func RecordValidationRejection(reason string) {
	validationRejectionsTotal.WithLabelValues(reason).Inc()
}
