// Package metrics defines the Prometheus collectors shared by the server and
// worker processes and the listener that serves them for scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	UploadsTotal          *prometheus.CounterVec
	IngestionJobsTotal    *prometheus.CounterVec
	IngestionStageLatency *prometheus.HistogramVec
	IngestionJobsInFlight prometheus.Gauge
	ChunksIndexedTotal    prometheus.Counter
	QueueDeliveriesTotal  *prometheus.CounterVec
	ChatQueriesTotal      *prometheus.CounterVec
	ChatLatency           prometheus.Histogram
	RetrievalResultsCount prometheus.Histogram
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. Passing
// prometheus.DefaultRegisterer exposes them on StartServer's default
// gatherer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uploads_total",
				Help: "PDF uploads by outcome (accepted, rejected, error).",
			},
			[]string{"outcome"},
		),
		IngestionJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_jobs_total",
				Help: "Finished ingestion jobs by terminal state and failure reason.",
			},
			[]string{"state", "reason"},
		),
		IngestionStageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingestion_stage_duration_seconds",
				Help:    "Time spent in each ingestion job stage.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		IngestionJobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingestion_jobs_in_flight",
				Help: "Ingestion jobs currently executing in this worker.",
			},
		),
		ChunksIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chunks_indexed_total",
				Help: "Total chunks upserted into the vector index.",
			},
		),
		QueueDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_deliveries_total",
				Help: "Queue deliveries by outcome (acked, retry, dead_lettered).",
			},
			[]string{"outcome"},
		),
		ChatQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_queries_total",
				Help: "Chat queries by result (answered, empty_context, error).",
			},
			[]string{"result"},
		),
		ChatLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chat_latency_seconds",
				Help:    "End-to-end chat answer latency in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		RetrievalResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "retrieval_results_count",
				Help:    "Number of chunks retrieved per query.",
				Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.UploadsTotal,
		m.IngestionJobsTotal,
		m.IngestionStageLatency,
		m.IngestionJobsInFlight,
		m.ChunksIndexedTotal,
		m.QueueDeliveriesTotal,
		m.ChatQueriesTotal,
		m.ChatLatency,
		m.RetrievalResultsCount,
		m.CircuitBreakerState,
	)

	return m
}

// NewNop returns collectors registered against a throwaway registry. Useful
// for tests and for components built without a metrics server.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
