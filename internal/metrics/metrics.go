package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "import_service"

type Metrics struct {
	registry *prometheus.Registry

	JobsSubmitted     prometheus.Counter
	JobsFinished      *prometheus.CounterVec
	JobDuration       prometheus.Histogram
	ActiveJobs        prometheus.Gauge
	FilesProcessed    *prometheus.CounterVec
	ViolationsCreated *prometheus.CounterVec
	PlagiarismChecks  prometheus.Counter

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimited     prometheus.Counter
}

// New builds the collectors on a private registry so that several instances
// (one per test, for example) never collide.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Total number of import jobs accepted for processing",
		}),
		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Total number of import jobs that reached a terminal status",
		}, []string{"status"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of import jobs from start to terminal status",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900},
		}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Import jobs currently tracked in memory",
		}),
		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Extracted files processed, by outcome",
		}, []string{"outcome"}),
		ViolationsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_created_total",
			Help:      "Violations recorded, by type",
		}, []string{"type"}),
		PlagiarismChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plagiarism_checks_total",
			Help:      "Pairwise plagiarism checks executed",
		}),

		RequestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		}, []string{"method", "endpoint"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.JobsSubmitted,
		m.JobsFinished,
		m.JobDuration,
		m.ActiveJobs,
		m.FilesProcessed,
		m.ViolationsCreated,
		m.PlagiarismChecks,
		m.RequestCounter,
		m.RequestDuration,
		m.RateLimited,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
