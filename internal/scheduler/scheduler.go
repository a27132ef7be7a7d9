// Package scheduler implements the Job Scheduler: a single priority queue
// with an iterative dispatch loop that assigns at most one job to each
// idle worker per pass.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/config"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/httpclient"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/metrics"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store/models"
)

// workerRegistry is the subset of *worker.Manager the scheduler needs, kept
// narrow so the scheduler package doesn't import worker and so a fake
// registry can stand in for tests.
type workerRegistry interface {
	BaseURL(workerID string) (string, bool)
	Ready(workerID string) bool
}

// Scheduler owns job dispatch. Every public method that touches dispatch
// state takes the scheduler-wide mutex; there is deliberately no per-job or
// per-worker locking, since the dispatch loop must see a single consistent
// view of "which workers are idle right now."
type Scheduler struct {
	store      store.Store
	manager    workerRegistry
	httpClient *httpclient.Client

	mu sync.Mutex
}

// New builds a Scheduler.
func New(s store.Store, manager workerRegistry) *Scheduler {
	return &Scheduler{
		store:      s,
		manager:    manager,
		httpClient: httpclient.New(time.Duration(config.WorkerApiTimeoutMs) * time.Millisecond),
	}
}

// Enqueue admits a new job in pending status.
func (s *Scheduler) Enqueue(ctx context.Context, job *models.Job) error {
	now := time.Now().Unix()
	job.Status = models.JobStatusPending
	job.CreatedAt = now
	job.UpdatedAt = now
	return s.store.CreateJob(ctx, job)
}

// Cancel moves a job to cancelled. A pending job is simply marked
// cancelled; a running job is also sent an interrupt request on its
// assigned worker, best-effort, before being marked cancelled.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.store.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.CanBeCancelled() {
		return fmt.Errorf("job %s is already in terminal status %s", jobID, job.Status)
	}

	previousStatus := job.Status
	if previousStatus == models.JobStatusRunning && job.WorkerID != nil {
		if baseURL, ok := s.manager.BaseURL(*job.WorkerID); ok {
			if err := s.httpClient.Interrupt(ctx, baseURL); err != nil {
				logging.Log.WithField("job_id", jobID).WithError(err).Warn("interrupt request failed, cancelling anyway")
			}
		}
	}

	return s.store.UpdateJobStatusGuarded(ctx, jobID, previousStatus, func(j *models.Job) {
		j.Status = models.JobStatusCancelled
		now := time.Now().Unix()
		j.CompletedAt = &now
		j.UpdatedAt = now
	})
}

// TryDispatch drains the pending queue against currently idle workers. It
// is an iterative loop, not a recursive one: each pass claims at most one
// job per idle worker, and the loop keeps going until either the queue is
// empty or no idle worker remains, whichever happens first.
func (s *Scheduler) TryDispatch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	dispatched := 0

	for {
		idleWorker := s.findIdleWorker(ctx)
		if idleWorker == nil {
			break
		}

		pending, err := s.store.ListJobsByPriority(ctx, models.JobStatusPending, 1)
		if err != nil {
			return fmt.Errorf("listing pending jobs: %w", err)
		}
		if len(pending) == 0 {
			break
		}
		job := pending[0]

		if err := s.dispatchOne(ctx, &job, idleWorker); err != nil {
			logging.Log.WithField("job_id", job.JobID).WithField("worker_id", idleWorker.ID).
				WithError(err).Warn("dispatch attempt failed")
			continue
		}
		dispatched++
	}

	if dispatched > 0 {
		metrics.JobDispatchDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

// dispatchOne claims job onto w, submits it, and settles it into a terminal
// status before returning: a 2xx response marks the job completed with the
// worker's response body as output, anything else marks it failed. Treating
// a 2xx as completion (rather than leaving the job running until some later
// progress report) is this scheduler's resolution of the spec's open
// question about synchronous vs. asynchronous worker completion reporting.
func (s *Scheduler) dispatchOne(ctx context.Context, job *models.Job, w *models.Worker) error {
	workerID := w.ID
	claimErr := s.store.UpdateJobStatusGuarded(ctx, job.JobID, models.JobStatusPending, func(j *models.Job) {
		j.Status = models.JobStatusRunning
		j.WorkerID = &workerID
		now := time.Now().Unix()
		j.StartedAt = &now
		j.UpdatedAt = now
	})
	if claimErr != nil {
		return fmt.Errorf("claiming job: %w", claimErr)
	}

	baseURL, ok := s.manager.BaseURL(workerID)
	if !ok {
		return s.failJob(ctx, job.JobID, "worker has no reachable endpoint")
	}

	output, err := s.httpClient.Submit(ctx, baseURL, job.WorkflowData)
	if err != nil {
		return s.failJob(ctx, job.JobID, err.Error())
	}

	if completeErr := s.store.UpdateJobStatusGuarded(ctx, job.JobID, models.JobStatusRunning, func(j *models.Job) {
		j.Status = models.JobStatusCompleted
		j.Output = models.JSONB(output)
		now := time.Now().Unix()
		j.CompletedAt = &now
		j.UpdatedAt = now
	}); completeErr != nil {
		return completeErr
	}

	metrics.JobsDispatched.WithLabelValues(workerID).Inc()
	return nil
}

func (s *Scheduler) failJob(ctx context.Context, jobID, reason string) error {
	metrics.RecordJobError("submission_failed")
	return s.store.UpdateJobStatusGuarded(ctx, jobID, models.JobStatusRunning, func(j *models.Job) {
		j.Status = models.JobStatusFailed
		j.Error = &reason
		now := time.Now().Unix()
		j.CompletedAt = &now
		j.UpdatedAt = now
	})
}

// findIdleWorker returns the first running worker with no job currently
// assigned to it, enforcing the at-most-one-job-per-worker invariant by
// construction: a worker only becomes a dispatch candidate again once its
// previous job has left running status.
func (s *Scheduler) findIdleWorker(ctx context.Context) *models.Worker {
	runningWorkers, err := s.store.ListWorkers(ctx, map[string]interface{}{"status": string(models.WorkerStatusRunning)})
	if err != nil {
		logging.Log.WithError(err).Warn("failed to list running workers")
		return nil
	}

	busy := make(map[string]bool)
	runningJobs, err := s.store.ListJobs(ctx, map[string]interface{}{"status": string(models.JobStatusRunning)}, 1000, 0)
	if err != nil {
		logging.Log.WithError(err).Warn("failed to list running jobs")
		return nil
	}
	for _, job := range runningJobs {
		if job.WorkerID != nil {
			busy[*job.WorkerID] = true
		}
	}

	for i := range runningWorkers {
		w := runningWorkers[i]
		if !busy[w.ID] && s.manager.Ready(w.ID) {
			return &w
		}
	}
	return nil
}
