package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tagroute",
			Name:      "tasks_total",
			Help:      "Store fetch tasks by service and outcome.",
		},
		[]string{"service", "outcome"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tagroute",
			Name:      "task_duration_seconds",
			Help:      "Latency of store fetch tasks.",
			// 100us .. ~1.6s
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"service"},
	)

	TasksInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tagroute",
			Name:      "tasks_in_flight",
			Help:      "Submitted tasks not yet completed.",
		},
		[]string{"service"},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tagroute",
			Name:      "layer_jobs_total",
			Help:      "Layer jobs by layer and outcome.",
		},
		[]string{"layer", "outcome"},
	)

	Rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tagroute",
			Name:      "layer_rejections_total",
			Help:      "Messages rejected by a layer, by reason.",
		},
		[]string{"layer", "reason"},
	)

	Results = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tagroute",
			Name:      "results",
			Help:      "Size of the current result set by kind (doc|index).",
		},
		[]string{"kind"},
	)

	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tagroute",
			Name:      "store_cache_requests_total",
			Help:      "Store cache lookups by result (hit|miss).",
		},
		[]string{"result"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "tagroute",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(TasksTotal, TaskDuration, TasksInFlight, JobsTotal, Rejections, Results, CacheRequests, uptime)
}

// MetricsHandler exposes /metrics. Mount it with mux.Handle("/metrics", telemetry.MetricsHandler()).
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveTask records one finished task.
func ObserveTask(service string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	TasksTotal.WithLabelValues(service, outcome).Inc()
	TaskDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
}
