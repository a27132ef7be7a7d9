package models

// ConfigEntry is a persisted key/value setting, used chiefly to remember the
// runtime locator's resolved path across restarts.
type ConfigEntry struct {
	Key         string `gorm:"primaryKey;type:text" json:"key"`
	Value       string `gorm:"type:text;not null" json:"value"`
	Description string `gorm:"type:text" json:"description"`
	UpdatedAt   int64  `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for the model.
func (ConfigEntry) TableName() string {
	return "config_entries"
}
