package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FirstTokenLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rag_agent_first_token_latency_seconds",
			Help:    "Time from call start to first streamed token",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	StreamDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rag_agent_stream_duration_seconds",
			Help:    "Total answer stream duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	StreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_agent_streams_total",
			Help: "Total answer streams by outcome",
		},
		[]string{"status"},
	)

	EvaluationJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_agent_evaluation_jobs_total",
			Help: "Total evaluation jobs by terminal status",
		},
		[]string{"status"},
	)

	EvaluationItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_agent_evaluation_items_total",
			Help: "Total evaluation items by outcome",
		},
		[]string{"status"},
	)

	MetricUpdateFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_agent_metric_update_failures_total",
			Help: "Total failed daily metric persistence attempts",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_agent_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_agent_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(FirstTokenLatency)
	prometheus.MustRegister(StreamDuration)
	prometheus.MustRegister(StreamsTotal)
	prometheus.MustRegister(EvaluationJobsTotal)
	prometheus.MustRegister(EvaluationItemsTotal)
	prometheus.MustRegister(MetricUpdateFailures)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
