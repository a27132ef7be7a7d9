package postgres_store

import (
	"context"
	"fmt"
	"time"

	"github.com/catalystcommunity/reactorcide/workerhost/internal/store"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store/models"
	"gorm.io/gorm"
)

// GetJobByID retrieves a job by its ID.
func (ps PostgresDbStore) GetJobByID(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := ps.getDB(ctx).Where("job_id = ?", jobID).First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return &job, nil
}

// CreateJob creates a new job.
func (ps PostgresDbStore) CreateJob(ctx context.Context, job *models.Job) error {
	if err := ps.getDB(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// UpdateJob updates an existing job unconditionally.
func (ps PostgresDbStore) UpdateJob(ctx context.Context, job *models.Job) error {
	job.UpdatedAt = time.Now().Unix()
	result := ps.getDB(ctx).Save(job)
	if result.Error != nil {
		return fmt.Errorf("failed to update job %s: %w", job.JobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdateJobStatusGuarded applies mutate to the current row only if its
// status still equals expectedStatus at the moment of the write, giving
// every status transition a monotone, race-free guard. It is the single
// codepath scheduler.Scheduler relies on to claim a job exactly once.
func (ps PostgresDbStore) UpdateJobStatusGuarded(ctx context.Context, jobID string, expectedStatus models.JobStatus, mutate func(job *models.Job)) error {
	return ps.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.Where("job_id = ? AND status = ?", jobID, expectedStatus).First(&job).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return store.ErrNotFound
			}
			return fmt.Errorf("failed to load job %s for guarded update: %w", jobID, err)
		}

		mutate(&job)

		result := tx.Model(&models.Job{}).
			Where("job_id = ? AND status = ?", jobID, expectedStatus).
			Updates(map[string]interface{}{
				"status":       job.Status,
				"worker_id":    job.WorkerID,
				"output":       job.Output,
				"error":        job.Error,
				"started_at":   job.StartedAt,
				"completed_at": job.CompletedAt,
				"updated_at":   job.UpdatedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to apply guarded update to job %s: %w", jobID, result.Error)
		}
		if result.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

// ListJobs retrieves jobs with optional filters and pagination.
func (ps PostgresDbStore) ListJobs(ctx context.Context, filters map[string]interface{}, limit, offset int) ([]models.Job, error) {
	var jobs []models.Job

	query := ps.getDB(ctx).Model(&models.Job{})
	for key, value := range filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "worker_id":
			query = query.Where("worker_id = ?", value)
		}
	}

	query = query.Order("priority DESC, created_at ASC").Limit(limit).Offset(offset)

	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// ListJobsByPriority lists up to limit jobs in status, ordered by priority
// descending then created_at ascending, the order the scheduler dispatches
// the pending queue in.
func (ps PostgresDbStore) ListJobsByPriority(ctx context.Context, status models.JobStatus, limit int) ([]models.Job, error) {
	return ps.ListJobs(ctx, map[string]interface{}{"status": string(status)}, limit, 0)
}
