package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB represents a JSON field stored in a jsonb column.
type JSONB map[string]interface{}

// Value implements driver.Valuer for database storage.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner for database retrieval.
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}

// JobStatus enumerates the states a Job moves through, monotonically, on its
// way to a terminal state.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal returns true for the three statuses a job never transitions out of.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job represents a single unit of inference work routed to exactly one worker.
type Job struct {
	JobID        string    `gorm:"primaryKey;type:text" json:"job_id"`
	WorkflowData JSONB     `gorm:"type:jsonb;not null" json:"workflow_data"`
	Priority     int       `gorm:"not null;default:0" json:"priority"`
	Status       JobStatus `gorm:"type:text;not null;default:'pending';check:status IN ('pending','running','completed','failed','cancelled')" json:"status"`
	WorkerID     *string   `gorm:"type:text;index" json:"worker_id"`
	Output       JSONB     `gorm:"type:jsonb" json:"output"`
	Error        *string   `gorm:"type:text" json:"error"`
	CreatedAt    int64     `gorm:"not null" json:"created_at"`
	UpdatedAt    int64     `gorm:"not null" json:"updated_at"`
	StartedAt    *int64    `json:"started_at"`
	CompletedAt  *int64    `json:"completed_at"`
}

// TableName specifies the table name for the model.
func (Job) TableName() string {
	return "jobs"
}

// IsRunning returns true if the job is currently assigned to a worker.
func (j *Job) IsRunning() bool {
	return j.Status == JobStatusRunning
}

// CanBeCancelled returns true if the job has not yet reached a terminal state.
func (j *Job) CanBeCancelled() bool {
	return !j.Status.IsTerminal()
}
