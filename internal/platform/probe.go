// Package platform implements the platform probe: the thin, OS-specific
// boundary between the Core and the host it runs on. GPU inventory is
// queried a different way on each OS; host CPU/RAM and process liveness are
// queried the same way everywhere via gopsutil.
package platform

import "context"

// GPUInfo describes a single GPU device as reported by the host. Fields the
// active probe can't determine are left at zero; sampler attribution and
// the metric_samples schema only consume VRAM/utilization, but the richer
// set is kept on the probe's own contract for anything that inspects a GPU
// directly (logging, future dashboards).
type GPUInfo struct {
	Index          int
	Name           string
	VRAMTotalMB    float64
	VRAMUsedMB     float64
	UtilizationPct float64
	TemperatureC   float64
	FanSpeedPct    float64
	PowerW         float64
	PowerLimitW    float64
}

// HostMetrics is a single point-in-time reading of host resource usage.
type HostMetrics struct {
	CPUUtilizationPct float64
	RAMUsedMB         float64
	RAMTotalMB        float64
	GPUs              []GPUInfo
}

// Probe is the platform boundary a worker lifecycle manager and metric
// sampler are built against. Exactly one implementation is selected at
// process startup, based on runtime.GOOS.
type Probe interface {
	// GPUInventory returns the GPUs visible on this host. An empty slice,
	// not an error, is returned when no GPU tooling is available.
	GPUInventory(ctx context.Context) ([]GPUInfo, error)

	// HostMetrics returns a single current reading of host CPU/RAM usage.
	HostMetrics(ctx context.Context) (HostMetrics, error)

	// ProcessAlive reports whether pid still refers to a live process.
	ProcessAlive(pid int) bool

	// KillProcess terminates pid. When graceful is true it requests a
	// cooperative shutdown (SIGTERM on POSIX); otherwise it forces
	// termination (SIGKILL / TerminateProcess).
	KillProcess(pid int, graceful bool) error
}

// New selects the Probe implementation for the host this process is
// running on. The selection happens once, at startup, mirroring how the
// rest of the Core treats its OS boundary as fixed for the life of the
// process.
func New() Probe {
	return newOSProbe()
}
