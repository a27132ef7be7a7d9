package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/catalystcommunity/reactorcide/workerhost/internal/store"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal in-memory store.Store sufficient to exercise the
// scheduler's dispatch and cancel paths, including the monotone
// UpdateJobStatusGuarded semantics the scheduler depends on to avoid racing
// itself across a TryDispatch pass.
type fakeStore struct {
	store.Store

	mu      sync.Mutex
	workers map[string]*models.Worker
	jobs    map[string]*models.Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		workers: make(map[string]*models.Worker),
		jobs:    make(map[string]*models.Job),
	}
}

func (f *fakeStore) putWorker(w *models.Worker) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workers[w.ID] = w
}

func (f *fakeStore) CreateJob(ctx context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	cp := *job
	f.jobs[job.JobID] = &cp
	return nil
}

func (f *fakeStore) GetJobByID(ctx context.Context, jobID string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeStore) UpdateJob(ctx context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.JobID] = &cp
	return nil
}

func (f *fakeStore) UpdateJobStatusGuarded(ctx context.Context, jobID string, expectedStatus models.JobStatus, mutate func(job *models.Job)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || j.Status != expectedStatus {
		return store.ErrNotFound
	}
	cp := *j
	mutate(&cp)
	f.jobs[jobID] = &cp
	return nil
}

func (f *fakeStore) ListJobs(ctx context.Context, filters map[string]interface{}, limit, offset int) ([]models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wantStatus, _ := filters["status"].(string)
	var out []models.Job
	for _, j := range f.jobs {
		if wantStatus != "" && string(j.Status) != wantStatus {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeStore) ListJobsByPriority(ctx context.Context, status models.JobStatus, limit int) ([]models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matching []models.Job
	for _, j := range f.jobs {
		if j.Status == status {
			matching = append(matching, *j)
		}
	}
	// Sort priority DESC, created_at ASC, ties broken oldest-first.
	for i := 0; i < len(matching); i++ {
		for j := i + 1; j < len(matching); j++ {
			a, b := matching[i], matching[j]
			less := b.Priority > a.Priority || (b.Priority == a.Priority && b.CreatedAt < a.CreatedAt)
			if less {
				matching[i], matching[j] = matching[j], matching[i]
			}
		}
	}
	if limit > 0 && len(matching) > limit {
		matching = matching[:limit]
	}
	return matching, nil
}

func (f *fakeStore) ListWorkers(ctx context.Context, filters map[string]interface{}) ([]models.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wantStatus, _ := filters["status"].(string)
	var out []models.Worker
	for _, w := range f.workers {
		if wantStatus != "" && string(w.Status) != wantStatus {
			continue
		}
		out = append(out, *w)
	}
	return out, nil
}

// fakeRegistry stands in for worker.Manager in tests: it maps a worker ID to
// the base URL of an httptest server and reports every registered worker as
// ready, mirroring a worker whose readiness probe already succeeded.
type fakeRegistry struct {
	mu      sync.Mutex
	baseURL map[string]string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{baseURL: make(map[string]string)}
}

func (r *fakeRegistry) set(workerID, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baseURL[workerID] = url
}

func (r *fakeRegistry) BaseURL(workerID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.baseURL[workerID]
	return u, ok
}

func (r *fakeRegistry) Ready(workerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.baseURL[workerID]
	return ok
}

// echoWorkerServer answers POST /prompt with the fixed JSON object
// {"echo": "ok"}, passing each decoded request body to onSubmit first.
func echoWorkerServer(t *testing.T, onSubmit func(body map[string]interface{})) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prompt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		onSubmit(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"echo": "ok"}`))
	}))
}

func TestTryDispatch_PriorityOrderAndCompletion(t *testing.T) {
	st := newFakeStore()
	var orderMu sync.Mutex
	var submitted []interface{}
	worker := echoWorkerServer(t, func(body map[string]interface{}) {
		orderMu.Lock()
		defer orderMu.Unlock()
		submitted = append(submitted, body["x"])
	})
	defer worker.Close()

	reg := newFakeRegistry()
	reg.set("w1", worker.URL)
	st.putWorker(&models.Worker{ID: "w1", Status: models.WorkerStatusRunning, Port: 8190})

	sched := New(st, reg)

	ctx := context.Background()
	low := &models.Job{JobID: "j-low", Priority: 0, WorkflowData: models.JSONB{"x": 1}}
	require.NoError(t, sched.Enqueue(ctx, low))
	time.Sleep(time.Millisecond)
	high := &models.Job{JobID: "j-high", Priority: 10, WorkflowData: models.JSONB{"x": 2}}
	require.NoError(t, sched.Enqueue(ctx, high))

	for i := 0; i < 4; i++ {
		require.NoError(t, sched.TryDispatch(ctx))
		all, _ := st.ListJobs(ctx, nil, 0, 0)
		allTerminal := true
		for _, j := range all {
			if !j.Status.IsTerminal() {
				allTerminal = false
			}
		}
		if allTerminal {
			break
		}
	}

	jHigh, err := st.GetJobByID(ctx, "j-high")
	require.NoError(t, err)
	jLow, err := st.GetJobByID(ctx, "j-low")
	require.NoError(t, err)

	require.Equal(t, models.JobStatusCompleted, jHigh.Status)
	require.Equal(t, models.JobStatusCompleted, jLow.Status)
	require.Equal(t, "ok", jHigh.Output["echo"])
	require.Equal(t, "ok", jLow.Output["echo"])

	orderMu.Lock()
	defer orderMu.Unlock()
	require.Equal(t, []interface{}{float64(2), float64(1)}, submitted, "the priority-10 job must be submitted before the priority-0 job")
}

// TestTryDispatch_AtMostOneJobPerWorker holds a worker's response open on a
// channel so the test can observe the mid-flight state: while the single
// running worker is still servicing job 1, job 2 must remain pending rather
// than also being claimed.
func TestTryDispatch_AtMostOneJobPerWorker(t *testing.T) {
	release := make(chan struct{})
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"echo": "ok"}`))
	}))
	defer worker.Close()

	st := newFakeStore()
	reg := newFakeRegistry()
	st.putWorker(&models.Worker{ID: "w1", Status: models.WorkerStatusRunning})
	reg.set("w1", worker.URL)

	sched := New(st, reg)
	ctx := context.Background()

	// j1 gets the higher priority so it is the one claimed first; created_at
	// has one-second resolution, so equal priorities would leave the claim
	// order undefined.
	require.NoError(t, sched.Enqueue(ctx, &models.Job{JobID: "j1", Priority: 1, WorkflowData: models.JSONB{}}))
	require.NoError(t, sched.Enqueue(ctx, &models.Job{JobID: "j2", WorkflowData: models.JSONB{}}))

	dispatchDone := make(chan error, 1)
	go func() { dispatchDone <- sched.TryDispatch(ctx) }()

	require.Eventually(t, func() bool {
		j1, err := st.GetJobByID(ctx, "j1")
		return err == nil && j1.Status == models.JobStatusRunning
	}, time.Second, time.Millisecond, "job1 should be claimed and running while the worker is busy")

	j2, err := st.GetJobByID(ctx, "j2")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusPending, j2.Status, "job2 must stay pending while the sole worker is occupied")

	close(release)
	require.NoError(t, <-dispatchDone)

	j1, err := st.GetJobByID(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, j1.Status)
}

func TestCancel_PendingJobIsDroppedWithoutInterrupt(t *testing.T) {
	st := newFakeStore()
	reg := newFakeRegistry()
	sched := New(st, reg)
	ctx := context.Background()

	require.NoError(t, sched.Enqueue(ctx, &models.Job{JobID: "j1", WorkflowData: models.JSONB{}}))
	require.NoError(t, sched.Cancel(ctx, "j1"))

	j1, err := st.GetJobByID(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCancelled, j1.Status)
}

func TestCancel_RunningJobSendsInterruptAndMarksCancelled(t *testing.T) {
	var interrupted bool
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/interrupt" {
			interrupted = true
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer worker.Close()

	st := newFakeStore()
	reg := newFakeRegistry()
	reg.set("w1", worker.URL)
	sched := New(st, reg)
	ctx := context.Background()

	workerID := "w1"
	require.NoError(t, st.CreateJob(ctx, &models.Job{
		JobID: "j1", Status: models.JobStatusRunning, WorkerID: &workerID, WorkflowData: models.JSONB{},
	}))

	require.NoError(t, sched.Cancel(ctx, "j1"))

	require.True(t, interrupted, "expected an interrupt request to reach the worker")
	j1, err := st.GetJobByID(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCancelled, j1.Status)
}

func TestCancel_TerminalJobIsRejected(t *testing.T) {
	st := newFakeStore()
	sched := New(st, newFakeRegistry())
	ctx := context.Background()

	require.NoError(t, st.CreateJob(ctx, &models.Job{JobID: "j1", Status: models.JobStatusCompleted, WorkflowData: models.JSONB{}}))
	err := sched.Cancel(ctx, "j1")
	require.Error(t, err)
}
