package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobs_created_total",
		Help: "Total analysis jobs created",
	})
	jobsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobs_completed_total",
		Help: "Total analysis jobs completed",
	})
	jobsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobs_failed_total",
		Help: "Total analysis jobs failed",
	})
	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Analysis job duration in seconds",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	})

	ocrBackendRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocr_backend_runs_total",
		Help: "OCR backend invocations by outcome",
	}, []string{"backend", "outcome"})
	ocrBackendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ocr_backend_duration_seconds",
		Help:    "OCR backend run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"backend"})
	ocrSelected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocr_selected_total",
		Help: "Documents whose winning OCR text came from the backend",
	}, []string{"backend"})

	workerJobsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_jobs_received_total",
		Help: "Queue messages received by the worker",
	})
	workerJobsDeletedUnrecoverable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_jobs_deleted_unrecoverable_total",
		Help: "Queue messages dropped because they could not be decoded",
	})
)

// IncJobCreated increments the created counter.
func IncJobCreated() { jobsCreatedTotal.Inc() }

// IncJobCompleted increments the completed counter.
func IncJobCompleted() { jobsCompletedTotal.Inc() }

// IncJobFailed increments the failed counter.
func IncJobFailed() { jobsFailedTotal.Inc() }

// ObserveJobDuration records a job duration.
func ObserveJobDuration(d time.Duration) {
	if d < 0 {
		d = 0
	}
	jobDuration.Observe(d.Seconds())
}

// ObserveOCRBackend records one backend run. outcome is "ok", "failed" or "timeout".
func ObserveOCRBackend(backend, outcome string, d time.Duration) {
	ocrBackendRuns.WithLabelValues(backend, outcome).Inc()
	ocrBackendDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// IncOCRSelected counts a scoring win for backend.
func IncOCRSelected(backend string) { ocrSelected.WithLabelValues(backend).Inc() }

// IncWorkerJobsReceived counts a queue message picked up by the worker.
func IncWorkerJobsReceived() { workerJobsReceived.Inc() }

// IncWorkerJobsDeletedUnrecoverable counts a dropped queue message.
func IncWorkerJobsDeletedUnrecoverable() { workerJobsDeletedUnrecoverable.Inc() }

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
