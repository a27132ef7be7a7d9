package platform

import (
	"bufio"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/config"
)

// linuxProbe queries NVIDIA GPUs via nvidia-smi's CSV query mode, the way
// nvidia-smi is used everywhere else in the Linux inference ecosystem.
type linuxProbe struct{}

func newOSProbe() Probe {
	return linuxProbe{}
}

// nvidiaSMIQueryFields is the column order requested from nvidia-smi; it is
// also the order parseNvidiaSMICSV expects back.
const nvidiaSMIQueryFields = "index,name,temperature.gpu,fan.speed,power.draw,power.limit,memory.used,memory.total,utilization.gpu"

func (linuxProbe) GPUInventory(ctx context.Context) ([]GPUInfo, error) {
	cmd := exec.CommandContext(ctx, config.NvidiaSmiPath,
		"--query-gpu="+nvidiaSMIQueryFields,
		"--format=csv,noheader,nounits")
	out, err := cmd.Output()
	if err != nil {
		logging.Log.WithError(err).Debug("nvidia-smi unavailable, reporting no GPUs")
		return nil, nil
	}
	return parseNvidiaSMICSV(out)
}

// parseNvidiaSMICSV parses nvidia-smi's `--format=csv,noheader,nounits`
// output for the nvidiaSMIQueryFields column set:
// index,name,temp,fan,power.draw,power.limit,mem.used,mem.total,util.
func parseNvidiaSMICSV(out []byte) ([]GPUInfo, error) {
	const fieldCount = 9
	var gpus []GPUInfo
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != fieldCount {
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		index, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		temp, _ := strconv.ParseFloat(fields[2], 64)
		fan, _ := strconv.ParseFloat(fields[3], 64)
		powerDraw, _ := strconv.ParseFloat(fields[4], 64)
		powerLimit, _ := strconv.ParseFloat(fields[5], 64)
		used, _ := strconv.ParseFloat(fields[6], 64)
		total, _ := strconv.ParseFloat(fields[7], 64)
		util, _ := strconv.ParseFloat(fields[8], 64)
		gpus = append(gpus, GPUInfo{
			Index:          index,
			Name:           fields[1],
			TemperatureC:   temp,
			FanSpeedPct:    fan,
			PowerW:         powerDraw,
			PowerLimitW:    powerLimit,
			VRAMUsedMB:     used,
			VRAMTotalMB:    total,
			UtilizationPct: util,
		})
	}
	return gpus, scanner.Err()
}

func (linuxProbe) HostMetrics(ctx context.Context) (HostMetrics, error) {
	m, err := hostMetricsGopsutil(ctx)
	if err != nil {
		return m, err
	}
	gpus, err := linuxProbe{}.GPUInventory(ctx)
	if err != nil {
		logging.Log.WithError(err).Warn("failed to collect GPU inventory")
	}
	m.GPUs = gpus
	return m, nil
}

func (linuxProbe) ProcessAlive(pid int) bool {
	return processAliveGopsutil(pid)
}

func (linuxProbe) KillProcess(pid int, graceful bool) error {
	return killProcessGopsutil(pid, graceful)
}
