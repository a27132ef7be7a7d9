package models

// WorkerStatus enumerates the lifecycle states of a managed worker process.
type WorkerStatus string

const (
	WorkerStatusStopped  WorkerStatus = "stopped"
	WorkerStatusStarting WorkerStatus = "starting"
	WorkerStatusRunning  WorkerStatus = "running"
	WorkerStatusError    WorkerStatus = "error"
)

// Worker represents one managed inference worker process.
type Worker struct {
	ID             string       `gorm:"primaryKey;type:text" json:"id"`
	Name           string       `gorm:"type:text;not null" json:"name"`
	Host           string       `gorm:"type:text;not null;default:'127.0.0.1'" json:"host"`
	Port           int          `gorm:"not null" json:"port"`
	DeviceSelector string       `gorm:"type:text" json:"device_selector"`
	Options        JSONB        `gorm:"type:jsonb" json:"options"`
	Status         WorkerStatus `gorm:"type:text;not null;default:'stopped';check:status IN ('stopped','starting','running','error')" json:"status"`
	Pid            *int         `json:"pid"`
	LastError      *string      `gorm:"type:text" json:"last_error"`
	CreatedAt      int64        `gorm:"not null" json:"created_at"`
	UpdatedAt      int64        `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for the model.
func (Worker) TableName() string {
	return "workers"
}

// IsAvailable returns true if the worker can accept a new job dispatch.
func (w *Worker) IsAvailable() bool {
	return w.Status == WorkerStatusRunning
}
