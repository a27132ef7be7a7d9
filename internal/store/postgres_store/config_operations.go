package postgres_store

import (
	"context"
	"fmt"
	"time"

	"github.com/catalystcommunity/reactorcide/workerhost/internal/store"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetConfigEntry retrieves a config entry by key.
func (ps PostgresDbStore) GetConfigEntry(ctx context.Context, key string) (*models.ConfigEntry, error) {
	var entry models.ConfigEntry
	if err := ps.getDB(ctx).Where("key = ?", key).First(&entry).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get config entry %s: %w", key, err)
	}
	return &entry, nil
}

// UpsertConfigEntry creates or overwrites a config entry by key.
func (ps PostgresDbStore) UpsertConfigEntry(ctx context.Context, entry *models.ConfigEntry) error {
	entry.UpdatedAt = time.Now().Unix()
	result := ps.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_at"}),
	}).Create(entry)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert config entry %s: %w", entry.Key, result.Error)
	}
	return nil
}
