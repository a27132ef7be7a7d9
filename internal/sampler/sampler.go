// Package sampler implements the Metric Sampler: a timer-driven collector
// that records host and per-worker resource readings into the
// metric_samples table and mirrors them onto the Prometheus gauges.
package sampler

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/metrics"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/platform"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store/models"
	"github.com/google/uuid"
)

// summaryEveryNTicks controls how often RecordAll also emits a
// human-readable info-level summary line, on top of the metric_samples rows
// it writes.
const summaryEveryNTicks = 12

// Sampler owns the start/stop lifecycle of the sampling timer. Start is
// idempotent: calling it while already running is a no-op, and Stop can be
// called safely even if Start was never called.
type Sampler struct {
	store store.Store
	probe platform.Probe

	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
	ticks   int
}

// New builds a Sampler.
func New(s store.Store, probe platform.Probe) *Sampler {
	return &Sampler{store: s, probe: probe}
}

// Start begins ticking every intervalMs, calling RecordAll on each tick. A
// second call to Start while already running starts nothing new.
func (s *Sampler) Start(intervalMs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.stopCh = make(chan struct{})
	s.running = true

	go s.loop(time.Duration(intervalMs) * time.Millisecond)
}

// Stop cancels the sampling timer. Safe to call even if not running.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
}

func (s *Sampler) loop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.mu.Lock()
	stopCh := s.stopCh
	s.mu.Unlock()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			if err := s.RecordAll(ctx); err != nil {
				logging.Log.WithError(err).Warn("metric sample collection failed")
			}
			cancel()
		}
	}
}

// RecordAll loads the running workers, takes one reading of host and GPU
// metrics, and for each worker appends one metric row per device index in
// its device_selector that matches an inventoried GPU. A worker bound to
// "cpu" or "mps" (no numeric indices) or to an index absent from the
// inventory simply gets no rows this tick.
func (s *Sampler) RecordAll(ctx context.Context) error {
	runningWorkers, err := s.store.ListWorkers(ctx, map[string]interface{}{"status": string(models.WorkerStatusRunning)})
	if err != nil {
		return err
	}
	if len(runningWorkers) == 0 {
		return nil
	}

	hostMetrics, err := s.probe.HostMetrics(ctx)
	if err != nil {
		return err
	}
	metrics.SetHostCPUUsage(hostMetrics.CPUUtilizationPct)
	metrics.SetHostRAMUsage(hostMetrics.RAMUsedMB)

	now := time.Now().Unix()
	rowCount := 0
	for _, w := range runningWorkers {
		indices := parseDeviceSelector(w.DeviceSelector)
		for _, idx := range indices {
			gpu, ok := findGPU(hostMetrics.GPUs, idx)
			if !ok {
				continue
			}
			if err := s.recordSample(ctx, w.ID, now, hostMetrics, gpu); err != nil {
				logging.Log.WithField("worker_id", w.ID).WithError(err).Warn("failed to record worker metric sample")
				continue
			}
			rowCount++
		}
	}

	metrics.RecordSamplerTick()

	s.mu.Lock()
	s.ticks++
	shouldSummarize := s.ticks%summaryEveryNTicks == 0
	s.mu.Unlock()

	if shouldSummarize {
		logging.Log.WithField("cpu_percent", hostMetrics.CPUUtilizationPct).
			WithField("ram_used_mb", hostMetrics.RAMUsedMB).
			WithField("gpu_count", len(hostMetrics.GPUs)).
			WithField("running_workers", len(runningWorkers)).
			WithField("rows_written", rowCount).
			Info("metric sampler summary")
	}

	return nil
}

// parseDeviceSelector splits a device_selector on commas and keeps only the
// integer tokens; "cpu" and "mps" (and anything else non-numeric) are
// skipped since they name no GPU index.
func parseDeviceSelector(selector string) []int {
	var indices []int
	for _, tok := range strings.Split(selector, ",") {
		tok = strings.TrimSpace(tok)
		idx, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}
	return indices
}

func findGPU(gpus []platform.GPUInfo, index int) (platform.GPUInfo, bool) {
	for _, g := range gpus {
		if g.Index == index {
			return g, true
		}
	}
	return platform.GPUInfo{}, false
}

func (s *Sampler) recordSample(ctx context.Context, workerID string, ts int64, hm platform.HostMetrics, gpu platform.GPUInfo) error {
	sample := &models.MetricSample{
		ID:                uuid.NewString(),
		WorkerID:          &workerID,
		Timestamp:         ts,
		CPUUtilizationPct: floatPtr(hm.CPUUtilizationPct),
		RAMUsedMB:         floatPtr(hm.RAMUsedMB),
		GPUIndex:          intPtr(gpu.Index),
		VRAMUsedMB:        floatPtr(gpu.VRAMUsedMB),
		VRAMTotalMB:       floatPtr(gpu.VRAMTotalMB),
		GPUUtilizationPct: floatPtr(gpu.UtilizationPct),
	}
	metrics.SetWorkerGPUUsage(workerID, gpu.UtilizationPct, gpu.VRAMUsedMB)
	return s.store.CreateMetricSample(ctx, sample)
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }
