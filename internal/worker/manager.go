// Package worker implements the Worker Lifecycle Manager: it spawns,
// monitors, and tears down local inference worker processes, classifying
// their log output and tracking readiness.
package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/config"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/httpclient"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/platform"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/runtime"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store/models"
)

const maxBufferedLines = 500

// maxPortScan bounds how far the port allocator scans upward from the
// configured base before giving up.
const maxPortScan = 1000

// process tracks everything the manager knows about one live worker
// process. Its entry in the active set is guarded by Manager.mu; its ready
// flag and log buffers are guarded by its own mu.
type process struct {
	workerID string
	cmd      *exec.Cmd
	pid      int
	baseURL  string
	cancel   context.CancelFunc

	mu       sync.Mutex
	ready    bool
	logs     []string
	errors   []string
	warnings []string
}

func (p *process) appendLine(kind LineKind, line string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logs = append(p.logs, line)
	if len(p.logs) > maxBufferedLines {
		p.logs = p.logs[len(p.logs)-maxBufferedLines:]
	}

	switch kind {
	case LineKindReady:
		p.ready = true
	case LineKindError:
		p.errors = append(p.errors, line)
	case LineKindWarning:
		p.warnings = append(p.warnings, line)
	}
}

func (p *process) isReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *process) snapshot() (logs, errs, warns []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.logs...), append([]string(nil), p.errors...), append([]string(nil), p.warnings...)
}

// Manager is the concurrency-safe Worker Lifecycle Manager: its in-memory
// map of active processes is guarded by a single RWMutex, the same design
// the rest of this codebase uses for shared, mutable worker state.
type Manager struct {
	store      store.Store
	probe      platform.Probe
	locator    *runtime.Locator
	httpClient *httpclient.Client
	installDir string

	mu    sync.RWMutex
	procs map[string]*process
}

// NewManager builds a Manager. installDir is the root directory the
// runtime locator searches for a virtualenv interpreter.
func NewManager(s store.Store, probe platform.Probe, locator *runtime.Locator, installDir string) *Manager {
	return &Manager{
		store:      s,
		probe:      probe,
		locator:    locator,
		installDir: installDir,
		httpClient: httpclient.New(time.Duration(config.WorkerApiTimeoutMs) * time.Millisecond),
		procs:      make(map[string]*process),
	}
}

// Launch spawns w's worker process, transitioning it through starting to
// either running (once the readiness poll or a ready-signal log line fires)
// or error (if the startup timeout elapses first).
func (m *Manager) Launch(ctx context.Context, w *models.Worker) error {
	logger := logging.Log.WithField("worker_id", w.ID)

	interpreter, err := m.locator.Locate(ctx, m.installDir)
	if err != nil {
		w.Status = models.WorkerStatusError
		errMsg := err.Error()
		w.LastError = &errMsg
		_ = m.store.UpdateWorker(ctx, w)
		return fmt.Errorf("resolving runtime: %w", err)
	}

	if w.Port == 0 {
		port, perr := platform.FindAvailablePort(config.WorkerBasePort, maxPortScan)
		if perr != nil {
			w.Status = models.WorkerStatusError
			errMsg := perr.Error()
			w.LastError = &errMsg
			_ = m.store.UpdateWorker(ctx, w)
			return fmt.Errorf("allocating port: %w", perr)
		}
		w.Port = port
	}

	args := BuildArgs(w.Options)
	args = append(args, "--listen", w.Host, "--port", fmt.Sprintf("%d", w.Port))

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, interpreter, args...)
	cmd.Env = append(os.Environ(), buildEnv(w)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		w.Status = models.WorkerStatusError
		errMsg := err.Error()
		w.LastError = &errMsg
		_ = m.store.UpdateWorker(ctx, w)
		return fmt.Errorf("starting worker process: %w", err)
	}

	pid := cmd.Process.Pid
	proc := &process{
		workerID: w.ID,
		cmd:      cmd,
		pid:      pid,
		baseURL:  fmt.Sprintf("http://%s:%d", w.Host, w.Port),
		cancel:   cancel,
	}

	m.mu.Lock()
	m.procs[w.ID] = proc
	m.mu.Unlock()

	go m.streamLines(stdout, proc)
	go m.streamLines(stderr, proc)
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.WithError(err).Warn("worker process exited")
		}
	}()

	w.Pid = &pid
	w.Status = models.WorkerStatusStarting
	w.LastError = nil
	if err := m.store.UpdateWorker(ctx, w); err != nil {
		logger.WithError(err).Error("failed to persist starting status")
	}

	go m.awaitReady(w.ID, proc)

	logger.WithField("pid", pid).Info("worker process launched")
	return nil
}

func (m *Manager) streamLines(r interface{ Read([]byte) (int, error) }, proc *process) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		proc.appendLine(ClassifyLine(line), line)
	}
}

// awaitReady polls a worker until it answers its HTTP readiness endpoints,
// a ready-signal log line appears, its process dies, a fatal error line
// appears in its output, or the startup timeout elapses — whichever comes
// first — then updates the worker's persisted status accordingly.
func (m *Manager) awaitReady(workerID string, proc *process) {
	deadline := time.Now().Add(time.Duration(config.WorkerStartupTimeoutMs) * time.Millisecond)
	interval := time.Duration(config.WorkerCheckIntervalMs) * time.Millisecond
	ctx := context.Background()

	for time.Now().Before(deadline) {
		if !m.probe.ProcessAlive(proc.pid) {
			m.markError(ctx, workerID, "process not running")
			return
		}
		if proc.isReady() {
			m.markRunning(ctx, workerID)
			return
		}
		if ok, _ := m.httpClient.Ready(ctx, proc.baseURL); ok {
			proc.mu.Lock()
			proc.ready = true
			proc.mu.Unlock()
			m.markRunning(ctx, workerID)
			return
		}
		if _, errs, _ := proc.snapshot(); hasFatalLine(errs) {
			m.markError(ctx, workerID, "fatal startup error in worker output")
			return
		}
		time.Sleep(interval)
	}

	logging.Log.WithField("worker_id", workerID).Warn("worker did not become ready before startup timeout")
	m.markError(ctx, workerID, "startup timeout exceeded before worker became ready")
}

func hasFatalLine(lines []string) bool {
	for _, l := range lines {
		if IsFatalLogLine(l) {
			return true
		}
	}
	return false
}

func (m *Manager) markRunning(ctx context.Context, workerID string) {
	w, err := m.store.GetWorkerByID(ctx, workerID)
	if err != nil {
		return
	}
	w.Status = models.WorkerStatusRunning
	w.LastError = nil
	if err := m.store.UpdateWorker(ctx, w); err != nil {
		logging.Log.WithField("worker_id", workerID).WithError(err).Error("failed to persist running status")
	}
}

func (m *Manager) markError(ctx context.Context, workerID, reason string) {
	w, err := m.store.GetWorkerByID(ctx, workerID)
	if err != nil {
		return
	}
	w.Status = models.WorkerStatusError
	w.LastError = &reason
	w.Pid = nil
	if err := m.store.UpdateWorker(ctx, w); err != nil {
		logging.Log.WithField("worker_id", workerID).WithError(err).Error("failed to persist error status")
	}
}

// Stop terminates a worker's process: SIGTERM (or the OS equivalent), then
// a poll every 500ms for up to the graceful shutdown timeout, escalating to
// a forceful kill if the process has not exited by then.
func (m *Manager) Stop(ctx context.Context, workerID string) error {
	m.mu.Lock()
	proc, ok := m.procs[workerID]
	if ok {
		delete(m.procs, workerID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("worker %s has no tracked process", workerID)
	}

	defer proc.cancel()

	if err := m.probe.KillProcess(proc.pid, true); err != nil {
		logging.Log.WithField("worker_id", workerID).WithError(err).Warn("graceful signal failed, escalating immediately")
		return m.forceKill(ctx, workerID, proc)
	}

	deadline := time.Now().Add(time.Duration(config.GracefulShutdownTimeoutMs) * time.Millisecond)
	for time.Now().Before(deadline) {
		if !m.probe.ProcessAlive(proc.pid) {
			return m.finalizeStop(ctx, workerID)
		}
		time.Sleep(500 * time.Millisecond)
	}

	return m.forceKill(ctx, workerID, proc)
}

func (m *Manager) forceKill(ctx context.Context, workerID string, proc *process) error {
	if err := m.probe.KillProcess(proc.pid, false); err != nil && m.probe.ProcessAlive(proc.pid) {
		return fmt.Errorf("failed to force-kill worker %s: %w", workerID, err)
	}
	return m.finalizeStop(ctx, workerID)
}

func (m *Manager) finalizeStop(ctx context.Context, workerID string) error {
	w, err := m.store.GetWorkerByID(ctx, workerID)
	if err != nil {
		return err
	}
	w.Status = models.WorkerStatusStopped
	w.Pid = nil
	return m.store.UpdateWorker(ctx, w)
}

// Ready reports whether workerID's process has signalled readiness, by a
// ready-signal log line or by answering its HTTP readiness endpoints.
func (m *Manager) Ready(workerID string) bool {
	m.mu.RLock()
	proc, ok := m.procs[workerID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return proc.isReady()
}

// BaseURL returns the HTTP base URL a live worker process answers on.
func (m *Manager) BaseURL(workerID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	proc, ok := m.procs[workerID]
	if !ok {
		return "", false
	}
	return proc.baseURL, true
}

// Logs returns the buffered log lines, errors, and warnings seen so far for
// a worker's process.
func (m *Manager) Logs(workerID string) (logs, errs, warns []string, ok bool) {
	m.mu.RLock()
	proc, found := m.procs[workerID]
	m.mu.RUnlock()
	if !found {
		return nil, nil, nil, false
	}
	logs, errs, warns = proc.snapshot()
	return logs, errs, warns, true
}

// buildEnv derives the environment variables a worker's device selector
// implies: CUDA_VISIBLE_DEVICES pins it to one or more NVIDIA GPUs, and on
// Apple Silicon PYTORCH_ENABLE_MPS_FALLBACK keeps unsupported ops from
// crashing the process outright.
func buildEnv(w *models.Worker) []string {
	var env []string
	if w.DeviceSelector == "" {
		return env
	}
	if strings.EqualFold(w.DeviceSelector, "mps") {
		env = append(env, "PYTORCH_ENABLE_MPS_FALLBACK=1")
		return env
	}
	env = append(env, "CUDA_VISIBLE_DEVICES="+w.DeviceSelector)
	return env
}
