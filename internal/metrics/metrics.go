// Package metrics exposes the Prometheus collectors the Core's components
// update as they run. The workers-by-status and jobs-by-status gauges are
// registered, but no component calls SetWorkersByStatus or SetJobsByStatus,
// so they are not populated from store state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkersByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "workerhost_workers_by_status",
			Help: "Number of workers currently in each status",
		},
		[]string{"status"},
	)

	WorkerGPUUtilization = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "workerhost_worker_gpu_utilization_percent",
			Help: "Current GPU utilization percentage attributed to a worker",
		},
		[]string{"worker_id"},
	)

	WorkerGPUMemoryUsedMB = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "workerhost_worker_gpu_memory_used_mb",
			Help: "Current GPU memory usage in MB attributed to a worker",
		},
		[]string{"worker_id"},
	)

	// Job metrics
	JobsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "workerhost_jobs_by_status",
			Help: "Number of jobs currently in each status",
		},
		[]string{"status"},
	)

	JobDispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workerhost_job_dispatch_duration_seconds",
			Help:    "Time taken by a single scheduler dispatch pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	JobsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workerhost_jobs_dispatched_total",
			Help: "Total number of jobs dispatched to a worker",
		},
		[]string{"worker_id"},
	)

	JobErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workerhost_job_errors_total",
			Help: "Total number of jobs that ended in failed status",
		},
		[]string{"reason"},
	)

	// Sampler metrics
	SamplerTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workerhost_sampler_ticks_total",
			Help: "Total number of metric sampler collection ticks",
		},
	)

	HostCPUUsagePercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workerhost_host_cpu_usage_percent",
			Help: "Current host CPU usage percentage",
		},
	)

	HostRAMUsedMB = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workerhost_host_ram_used_mb",
			Help: "Current host RAM usage in MB",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetWorkersByStatus sets the gauge for a given worker status.
func SetWorkersByStatus(status string, count float64) {
	WorkersByStatus.WithLabelValues(status).Set(count)
}

// SetJobsByStatus sets the gauge for a given job status.
func SetJobsByStatus(status string, count float64) {
	JobsByStatus.WithLabelValues(status).Set(count)
}

// RecordDispatch records one scheduler dispatch pass.
func RecordDispatch(workerID string, durationSeconds float64) {
	JobDispatchDuration.Observe(durationSeconds)
	JobsDispatched.WithLabelValues(workerID).Inc()
}

// RecordJobError records a job ending in failed status.
func RecordJobError(reason string) {
	JobErrors.WithLabelValues(reason).Inc()
}

// SetWorkerGPUUsage mirrors one worker's attributed GPU reading.
func SetWorkerGPUUsage(workerID string, utilizationPct, memUsedMB float64) {
	WorkerGPUUtilization.WithLabelValues(workerID).Set(utilizationPct)
	WorkerGPUMemoryUsedMB.WithLabelValues(workerID).Set(memUsedMB)
}

// SetHostCPUUsage mirrors the host-wide CPU reading.
func SetHostCPUUsage(percent float64) {
	HostCPUUsagePercent.Set(percent)
}

// SetHostRAMUsage mirrors the host-wide RAM reading.
func SetHostRAMUsage(usedMB float64) {
	HostRAMUsedMB.Set(usedMB)
}

// RecordSamplerTick records one completed metric sampler collection tick.
func RecordSamplerTick() {
	SamplerTicks.Inc()
}
