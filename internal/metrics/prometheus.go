package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus series exported on /metrics. The Collector feeds the operation
// series; the HTTP middleware feeds the API series.
var (
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_operation_duration_seconds",
			Help:    "Duration of ingestion and read operations in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"operation", "status"},
	)

	OperationRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_operation_records_total",
			Help: "Records moved by ingestion and read operations",
		},
		[]string{"operation"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	JobsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_jobs_published_total",
			Help: "Ingestion jobs published to the queue",
		},
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func export(op string, duration time.Duration, records int64, err error) {
	OperationDuration.WithLabelValues(op, status(err)).Observe(duration.Seconds())
	if records > 0 {
		OperationRecords.WithLabelValues(op).Add(float64(records))
	}
}
