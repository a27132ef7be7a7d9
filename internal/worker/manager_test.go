package worker

import (
	"context"
	"os"
	"path/filepath"
	goruntime "runtime"
	"sync"
	"testing"
	"time"

	"github.com/catalystcommunity/reactorcide/workerhost/internal/config"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/platform"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/runtime"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store/models"
	"github.com/stretchr/testify/require"
)

// fakeManagerStore is an in-memory stand-in for the worker rows the manager
// reads and writes; everything else a full store.Store offers is left to
// the embedded nil interface and is never called in these tests.
type fakeManagerStore struct {
	store.Store
	mu      sync.Mutex
	workers map[string]*models.Worker
}

func newFakeManagerStore() *fakeManagerStore {
	return &fakeManagerStore{workers: make(map[string]*models.Worker)}
}

func (f *fakeManagerStore) put(w *models.Worker) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *w
	f.workers[w.ID] = &cp
}

func (f *fakeManagerStore) GetWorkerByID(ctx context.Context, workerID string) (*models.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.workers[workerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (f *fakeManagerStore) UpdateWorker(ctx context.Context, worker *models.Worker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *worker
	f.workers[worker.ID] = &cp
	return nil
}

func (f *fakeManagerStore) snapshot(workerID string) *models.Worker {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.workers[workerID]
	if !ok {
		return nil
	}
	cp := *w
	return &cp
}

// writeFakeWorkerBinary drops an executable script at path that answers
// `--version` the way CPython does (so it can double as the RUNTIME_PATH
// override the locator validates) and otherwise runs body as the emulated
// worker process.
func writeFakeWorkerBinary(t *testing.T, path, body string) {
	t.Helper()
	script := "#!/bin/sh\n" +
		"if [ \"$1\" = \"--version\" ]; then\n" +
		"  echo 'Python 3.11.4'\n" +
		"  exit 0\n" +
		"fi\n" +
		body
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
}

// newTestManager wires a Manager against fakeSt for worker persistence, a
// locator whose RUNTIME_PATH override points straight at binPath (skipping
// any filesystem search), and the real platform probe, since process
// liveness/signal delivery is cheap to exercise against a real spawned
// process and gopsutil works the same in tests as in production.
func newTestManager(t *testing.T, fakeSt *fakeManagerStore, binPath string) *Manager {
	t.Helper()
	previous := config.RuntimePathOverride
	config.RuntimePathOverride = binPath
	t.Cleanup(func() { config.RuntimePathOverride = previous })

	loc := runtime.NewLocator(fakeSt)
	return NewManager(fakeSt, platform.New(), loc, t.TempDir())
}

func withFastPolling(t *testing.T, checkIntervalMs, startupTimeoutMs, gracefulShutdownMs int) {
	t.Helper()
	prevInterval := config.WorkerCheckIntervalMs
	prevTimeout := config.WorkerStartupTimeoutMs
	prevGraceful := config.GracefulShutdownTimeoutMs
	config.WorkerCheckIntervalMs = checkIntervalMs
	config.WorkerStartupTimeoutMs = startupTimeoutMs
	config.GracefulShutdownTimeoutMs = gracefulShutdownMs
	t.Cleanup(func() {
		config.WorkerCheckIntervalMs = prevInterval
		config.WorkerStartupTimeoutMs = prevTimeout
		config.GracefulShutdownTimeoutMs = prevGraceful
	})
}

func newTestWorker(id string) *models.Worker {
	return &models.Worker{
		ID:     id,
		Name:   "test-worker",
		Host:   "127.0.0.1",
		Port:   0,
		Status: models.WorkerStatusStopped,
	}
}

func TestLaunch_TransitionsToRunningOnReadySignal(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("fake worker binary is a POSIX shell script")
	}
	withFastPolling(t, 20, 3000, 5000)

	binPath := filepath.Join(t.TempDir(), "fake-worker")
	writeFakeWorkerBinary(t, binPath, "echo 'Server running on port 1234'\nsleep 2\n")

	fakeSt := newFakeManagerStore()
	w := newTestWorker("worker-ready")
	fakeSt.put(w)

	m := newTestManager(t, fakeSt, binPath)
	require.NoError(t, m.Launch(context.Background(), w))

	require.Eventually(t, func() bool {
		cur := fakeSt.snapshot(w.ID)
		return cur != nil && cur.Status == models.WorkerStatusRunning
	}, 3*time.Second, 10*time.Millisecond, "worker should transition to running once its ready line is seen")

	cur := fakeSt.snapshot(w.ID)
	require.NotNil(t, cur.Pid)
	require.Nil(t, cur.LastError)
	require.True(t, m.Ready(w.ID))

	baseURL, ok := m.BaseURL(w.ID)
	require.True(t, ok)
	require.Contains(t, baseURL, "127.0.0.1")

	_ = m.Stop(context.Background(), w.ID)
}

func TestLaunch_MarksErrorWhenProcessExitsBeforeReady(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("fake worker binary is a POSIX shell script")
	}
	withFastPolling(t, 20, 3000, 5000)

	binPath := filepath.Join(t.TempDir(), "fake-worker")
	writeFakeWorkerBinary(t, binPath, "exit 1\n")

	fakeSt := newFakeManagerStore()
	w := newTestWorker("worker-crashes")
	fakeSt.put(w)

	m := newTestManager(t, fakeSt, binPath)
	require.NoError(t, m.Launch(context.Background(), w))

	require.Eventually(t, func() bool {
		cur := fakeSt.snapshot(w.ID)
		return cur != nil && cur.Status == models.WorkerStatusError
	}, 3*time.Second, 10*time.Millisecond, "worker should be marked error once its process exits without becoming ready")

	cur := fakeSt.snapshot(w.ID)
	require.Nil(t, cur.Pid, "pid must be cleared alongside the error status")
	require.NotNil(t, cur.LastError)
}

func TestStop_GracefulShutdownClearsPidAndStopsStatus(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("fake worker binary is a POSIX shell script")
	}
	withFastPolling(t, 20, 3000, 5000)

	binPath := filepath.Join(t.TempDir(), "fake-worker")
	writeFakeWorkerBinary(t, binPath, "echo 'Server running on port 1234'\nwhile true; do sleep 1; done\n")

	fakeSt := newFakeManagerStore()
	w := newTestWorker("worker-graceful-stop")
	fakeSt.put(w)

	m := newTestManager(t, fakeSt, binPath)
	require.NoError(t, m.Launch(context.Background(), w))

	require.Eventually(t, func() bool {
		cur := fakeSt.snapshot(w.ID)
		return cur != nil && cur.Status == models.WorkerStatusRunning
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Stop(context.Background(), w.ID))

	cur := fakeSt.snapshot(w.ID)
	require.Equal(t, models.WorkerStatusStopped, cur.Status)
	require.Nil(t, cur.Pid)

	_, ok := m.BaseURL(w.ID)
	require.False(t, ok, "stop should drop the tracked process entry")
}

func TestStop_EscalatesToForceKillWhenProcessIgnoresTerm(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("fake worker binary is a POSIX shell script")
	}
	withFastPolling(t, 20, 3000, 50)

	binPath := filepath.Join(t.TempDir(), "fake-worker")
	writeFakeWorkerBinary(t, binPath, "trap '' TERM\necho 'Server running on port 1234'\nwhile true; do sleep 1; done\n")

	fakeSt := newFakeManagerStore()
	w := newTestWorker("worker-ignores-term")
	fakeSt.put(w)

	m := newTestManager(t, fakeSt, binPath)
	require.NoError(t, m.Launch(context.Background(), w))

	require.Eventually(t, func() bool {
		cur := fakeSt.snapshot(w.ID)
		return cur != nil && cur.Status == models.WorkerStatusRunning
	}, 3*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Stop(stopCtx, w.ID))

	cur := fakeSt.snapshot(w.ID)
	require.Equal(t, models.WorkerStatusStopped, cur.Status)
	require.Nil(t, cur.Pid)
}
