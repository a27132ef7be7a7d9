package models

// MetricSample is one append-only resource reading, attributed to a worker
// (or host-wide, when WorkerID is nil) at a point in time.
type MetricSample struct {
	ID                string   `gorm:"primaryKey;type:text" json:"id"`
	WorkerID          *string  `gorm:"type:text;index" json:"worker_id"`
	Timestamp         int64    `gorm:"not null;index" json:"timestamp"`
	GPUIndex          *int     `json:"gpu_index"`
	VRAMUsedMB        *float64 `json:"vram_used_mb"`
	VRAMTotalMB       *float64 `json:"vram_total_mb"`
	GPUUtilizationPct *float64 `json:"gpu_utilization_pct"`
	RAMUsedMB         *float64 `json:"ram_used_mb"`
	CPUUtilizationPct *float64 `json:"cpu_utilization_pct"`
}

// TableName specifies the table name for the model.
func (MetricSample) TableName() string {
	return "metric_samples"
}
