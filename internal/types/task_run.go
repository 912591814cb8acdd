package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
	TaskStatusCanceled  = "canceled"
)

const (
	TaskTypeCompute = "metric_compute"
)

// TaskRun is one asynchronous compute request. Created on enqueue,
// mutated only by the executor, never deleted by normal operation.
type TaskRun struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	MetricVersionID uuid.UUID      `gorm:"type:uuid;not null;index" json:"metric_version_id"`
	TaskType        string         `gorm:"column:task_type;size:32;not null" json:"task_type"`
	Status          string         `gorm:"column:status;size:16;not null;default:pending;index" json:"status"`
	Payload         datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Result          datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`
	Error           string         `gorm:"column:error;type:text" json:"error"`
	StartedAt       *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt      *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	LockedAt        *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

func (TaskRun) TableName() string { return "task_run" }
