package postgres_store

import (
	"context"
	"fmt"
	"time"

	"github.com/catalystcommunity/reactorcide/workerhost/internal/store"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store/models"
	"gorm.io/gorm"
)

// CreateWorker creates a new worker row.
func (ps PostgresDbStore) CreateWorker(ctx context.Context, worker *models.Worker) error {
	now := time.Now().Unix()
	worker.CreatedAt = now
	worker.UpdatedAt = now
	if err := ps.getDB(ctx).Create(worker).Error; err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	return nil
}

// GetWorkerByID retrieves a worker by its ID.
func (ps PostgresDbStore) GetWorkerByID(ctx context.Context, workerID string) (*models.Worker, error) {
	var worker models.Worker
	if err := ps.getDB(ctx).Where("id = ?", workerID).First(&worker).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get worker %s: %w", workerID, err)
	}
	return &worker, nil
}

// UpdateWorker updates an existing worker row.
func (ps PostgresDbStore) UpdateWorker(ctx context.Context, worker *models.Worker) error {
	worker.UpdatedAt = time.Now().Unix()
	result := ps.getDB(ctx).Save(worker)
	if result.Error != nil {
		return fmt.Errorf("failed to update worker %s: %w", worker.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteWorker deletes a worker row by ID, refusing if any of its jobs are
// still in a non-terminal status — a Job's worker_id is a weak reference,
// and deleting the worker out from under a pending or running job would
// leave it permanently unresolvable.
func (ps PostgresDbStore) DeleteWorker(ctx context.Context, workerID string) error {
	var openJobs int64
	if err := ps.getDB(ctx).Model(&models.Job{}).
		Where("worker_id = ? AND status NOT IN ?", workerID,
			[]string{string(models.JobStatusCompleted), string(models.JobStatusFailed), string(models.JobStatusCancelled)}).
		Count(&openJobs).Error; err != nil {
		return fmt.Errorf("checking open jobs for worker %s: %w", workerID, err)
	}
	if openJobs > 0 {
		return fmt.Errorf("%w: worker %s has %d job(s) in a non-terminal status", store.ErrForbidden, workerID, openJobs)
	}

	result := ps.getDB(ctx).Where("id = ?", workerID).Delete(&models.Worker{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete worker %s: %w", workerID, result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListWorkers lists workers matching the given filters. Supported filter
// keys: "status".
func (ps PostgresDbStore) ListWorkers(ctx context.Context, filters map[string]interface{}) ([]models.Worker, error) {
	var workers []models.Worker

	query := ps.getDB(ctx).Model(&models.Worker{})
	for key, value := range filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		}
	}

	if err := query.Order("created_at ASC").Find(&workers).Error; err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	return workers, nil
}
