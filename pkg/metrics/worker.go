package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics records batch runs of the background workers.
type WorkerMetrics struct {
	duration  *prometheus.HistogramVec
	processed *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

// NewWorkerMetrics registers the worker metrics on reg.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		return &WorkerMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "batch_duration_seconds",
		Help:      "Duration of worker batches in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"worker"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "processed_total",
		Help:      "Items processed successfully.",
	}, []string{"worker"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "failed_total",
		Help:      "Items that failed processing.",
	}, []string{"worker"})
	reg.MustRegister(duration, processed, failed)
	return &WorkerMetrics{duration: duration, processed: processed, failed: failed}
}

// ObserveBatch records the duration of a batch.
func (w *WorkerMetrics) ObserveBatch(worker string, elapsed time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(worker)).Observe(elapsed.Seconds())
}

// AddProcessed increments the processed counter.
func (w *WorkerMetrics) AddProcessed(worker string, n int) {
	if w == nil || w.processed == nil || n <= 0 {
		return
	}
	w.processed.WithLabelValues(normalizeLabel(worker)).Add(float64(n))
}

// AddFailed increments the failure counter.
func (w *WorkerMetrics) AddFailed(worker string, n int) {
	if w == nil || w.failed == nil || n <= 0 {
		return
	}
	w.failed.WithLabelValues(normalizeLabel(worker)).Add(float64(n))
}
