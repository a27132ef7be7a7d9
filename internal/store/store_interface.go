package store

import (
	"context"

	"github.com/catalystcommunity/reactorcide/workerhost/internal/store/models"
	"gorm.io/gorm"
)

var AppStore Store

// GetDB returns the database connection, when the active store exposes one.
func GetDB() *gorm.DB {
	if store, ok := AppStore.(interface{ GetDB() *gorm.DB }); ok {
		return store.GetDB()
	}
	return nil
}

// Store is the persistence boundary for the Core: workers, jobs, metric
// samples, and the small config-entry table used to remember resolved
// runtime paths across restarts.
type Store interface {
	Initialize() (deferredFunc func(), err error)

	// Worker operations
	CreateWorker(ctx context.Context, worker *models.Worker) error
	GetWorkerByID(ctx context.Context, workerID string) (*models.Worker, error)
	UpdateWorker(ctx context.Context, worker *models.Worker) error
	DeleteWorker(ctx context.Context, workerID string) error
	ListWorkers(ctx context.Context, filters map[string]interface{}) ([]models.Worker, error)

	// Job operations
	CreateJob(ctx context.Context, job *models.Job) error
	GetJobByID(ctx context.Context, jobID string) (*models.Job, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	// UpdateJobStatusGuarded applies update only if the job's current status
	// in the store still equals expectedStatus, returning store.ErrNotFound
	// otherwise. It is the monotone-transition guard used by the scheduler.
	UpdateJobStatusGuarded(ctx context.Context, jobID string, expectedStatus models.JobStatus, mutate func(job *models.Job)) error
	ListJobs(ctx context.Context, filters map[string]interface{}, limit, offset int) ([]models.Job, error)
	ListJobsByPriority(ctx context.Context, status models.JobStatus, limit int) ([]models.Job, error)

	// Metric sample operations
	CreateMetricSample(ctx context.Context, sample *models.MetricSample) error
	ListMetricSamples(ctx context.Context, workerID string, since int64, limit int) ([]models.MetricSample, error)

	// Config entry operations
	GetConfigEntry(ctx context.Context, key string) (*models.ConfigEntry, error)
	UpsertConfigEntry(ctx context.Context, entry *models.ConfigEntry) error
}
