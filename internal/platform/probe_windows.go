package platform

import (
	"context"
	"os/exec"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/config"
	"github.com/yusufpapurcu/wmi"
)

// windowsProbe prefers nvidia-smi when present (identical CSV format to
// Linux) and falls back to a WMI video-controller query, which is the only
// source of GPU inventory on a non-NVIDIA or driver-less Windows host.
type windowsProbe struct{}

func newOSProbe() Probe {
	return windowsProbe{}
}

// win32VideoController mirrors the subset of Win32_VideoController fields
// the probe needs; field names must match the WMI class exactly.
type win32VideoController struct {
	Name                    string
	AdapterRAM              uint32
	CurrentRefreshRate      uint32
}

func (windowsProbe) GPUInventory(ctx context.Context) ([]GPUInfo, error) {
	cmd := exec.CommandContext(ctx, config.NvidiaSmiPath,
		"--query-gpu="+nvidiaSMIQueryFields,
		"--format=csv,noheader,nounits")
	if out, err := cmd.Output(); err == nil {
		return parseNvidiaSMICSV(out)
	}

	var controllers []win32VideoController
	if err := wmi.Query("SELECT Name, AdapterRAM, CurrentRefreshRate FROM Win32_VideoController", &controllers); err != nil {
		logging.Log.WithError(err).Debug("WMI video controller query unavailable, reporting no GPUs")
		return nil, nil
	}

	gpus := make([]GPUInfo, 0, len(controllers))
	for i, c := range controllers {
		gpus = append(gpus, GPUInfo{
			Index:       i,
			Name:        c.Name,
			VRAMTotalMB: float64(c.AdapterRAM) / 1024 / 1024,
		})
	}
	return gpus, nil
}

func (windowsProbe) HostMetrics(ctx context.Context) (HostMetrics, error) {
	m, err := hostMetricsGopsutil(ctx)
	if err != nil {
		return m, err
	}
	gpus, err := windowsProbe{}.GPUInventory(ctx)
	if err != nil {
		logging.Log.WithError(err).Warn("failed to collect GPU inventory")
	}
	m.GPUs = gpus
	return m, nil
}

func (windowsProbe) ProcessAlive(pid int) bool {
	return processAliveGopsutil(pid)
}

func (windowsProbe) KillProcess(pid int, graceful bool) error {
	// Windows has no SIGTERM equivalent; gopsutil's Terminate falls back to
	// process termination either way, so graceful and forceful converge.
	return killProcessGopsutil(pid, graceful)
}
