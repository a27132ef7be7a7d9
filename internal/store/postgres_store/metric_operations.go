package postgres_store

import (
	"context"
	"fmt"

	"github.com/catalystcommunity/reactorcide/workerhost/internal/store/models"
)

// CreateMetricSample appends one metric sample row; samples are
// write-once, never updated.
func (ps PostgresDbStore) CreateMetricSample(ctx context.Context, sample *models.MetricSample) error {
	if err := ps.getDB(ctx).Create(sample).Error; err != nil {
		return fmt.Errorf("failed to create metric sample: %w", err)
	}
	return nil
}

// ListMetricSamples lists samples for a worker (or host-wide samples when
// workerID is empty) since the given unix timestamp, most recent first.
func (ps PostgresDbStore) ListMetricSamples(ctx context.Context, workerID string, since int64, limit int) ([]models.MetricSample, error) {
	var samples []models.MetricSample

	query := ps.getDB(ctx).Model(&models.MetricSample{}).Where("timestamp >= ?", since)
	if workerID == "" {
		query = query.Where("worker_id IS NULL")
	} else {
		query = query.Where("worker_id = ?", workerID)
	}

	if err := query.Order("timestamp DESC").Limit(limit).Find(&samples).Error; err != nil {
		return nil, fmt.Errorf("failed to list metric samples: %w", err)
	}
	return samples, nil
}
