package platform

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// hostMetricsGopsutil reads CPU/RAM usage the same way on every OS gopsutil
// supports. GPU figures are left zeroed; callers fill GPUs in separately
// since that part genuinely differs per platform.
func hostMetricsGopsutil(ctx context.Context) (HostMetrics, error) {
	var m HostMetrics

	if percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false); err == nil && len(percents) > 0 {
		m.CPUUtilizationPct = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		m.RAMUsedMB = float64(vm.Used) / 1024 / 1024
		m.RAMTotalMB = float64(vm.Total) / 1024 / 1024
	}

	return m, nil
}

// processAliveGopsutil reports liveness via gopsutil's process package,
// which shells out to the right OS primitive (procfs, sysctl, or the
// Windows process APIs) under the hood.
func processAliveGopsutil(pid int) bool {
	if pid <= 0 {
		return false
	}
	running, err := process.PidExists(int32(pid))
	if err != nil {
		return false
	}
	return running
}

// killProcessGopsutil terminates pid, requesting a graceful shutdown first
// when asked; the caller is responsible for the wait-then-escalate timing,
// this only issues the signal.
func killProcessGopsutil(pid int, graceful bool) error {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	if graceful {
		return proc.Terminate()
	}
	return proc.Kill()
}
