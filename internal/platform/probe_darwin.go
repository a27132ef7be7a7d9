package platform

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/catalystcommunity/app-utils-go/logging"
)

// darwinProbe has no NVML/nvidia-smi equivalent on macOS; GPU figures come
// from system_profiler's SPDisplaysDataType report, which only exposes a
// device name and total VRAM, not live utilization.
type darwinProbe struct{}

func newOSProbe() Probe {
	return darwinProbe{}
}

func (darwinProbe) GPUInventory(ctx context.Context) ([]GPUInfo, error) {
	cmd := exec.CommandContext(ctx, "system_profiler", "SPDisplaysDataType", "-json")
	out, err := cmd.Output()
	if err != nil {
		logging.Log.WithError(err).Debug("system_profiler unavailable, reporting no GPUs")
		return nil, nil
	}
	return parseSystemProfilerDisplays(out), nil
}

// parseSystemProfilerDisplays does a minimal best-effort scrape of the
// "spdisplays_vram" and "sppci_model" fields rather than pulling in a full
// JSON schema for a report Apple has changed shape on before.
func parseSystemProfilerDisplays(out []byte) []GPUInfo {
	text := string(out)
	var gpus []GPUInfo
	index := 0
	for _, block := range strings.Split(text, "\"sppci_model\"") {
		if index == 0 {
			index++
			continue
		}
		name := extractJSONStringValue(block)
		vram := extractVRAMMB("\"spdisplays_vram\"" + firstField(block, "\"spdisplays_vram\""))
		gpus = append(gpus, GPUInfo{
			Index:       index - 1,
			Name:        name,
			VRAMTotalMB: vram,
		})
		index++
	}
	return gpus
}

func extractJSONStringValue(block string) string {
	idx := strings.Index(block, ":")
	if idx < 0 {
		return ""
	}
	rest := block[idx+1:]
	start := strings.Index(rest, "\"")
	if start < 0 {
		return ""
	}
	rest = rest[start+1:]
	end := strings.Index(rest, "\"")
	if end < 0 {
		return ""
	}
	return rest[:end]
}

func firstField(block, key string) string {
	idx := strings.Index(block, key)
	if idx < 0 {
		return ""
	}
	return block[idx:]
}

func extractVRAMMB(block string) float64 {
	idx := strings.Index(block, ":")
	if idx < 0 {
		return 0
	}
	rest := block[idx+1:]
	start := strings.Index(rest, "\"")
	if start < 0 {
		return 0
	}
	rest = rest[start+1:]
	end := strings.Index(rest, "\"")
	if end < 0 {
		return 0
	}
	value := rest[:end]
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	if strings.Contains(strings.ToUpper(value), "GB") {
		return n * 1024
	}
	return n
}

func (darwinProbe) HostMetrics(ctx context.Context) (HostMetrics, error) {
	m, err := hostMetricsGopsutil(ctx)
	if err != nil {
		return m, err
	}
	gpus, err := darwinProbe{}.GPUInventory(ctx)
	if err != nil {
		logging.Log.WithError(err).Warn("failed to collect GPU inventory")
	}
	m.GPUs = gpus
	return m, nil
}

func (darwinProbe) ProcessAlive(pid int) bool {
	return processAliveGopsutil(pid)
}

func (darwinProbe) KillProcess(pid int, graceful bool) error {
	return killProcessGopsutil(pid, graceful)
}
