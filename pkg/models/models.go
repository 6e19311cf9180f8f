package models

import (
	"time"
)

// ExecutionRecord represents the operation_executions table: one row per dispatch.
type ExecutionRecord struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceID    int64     `gorm:"not null;index" json:"device_id"`
	OperationID string    `gorm:"not null" json:"operation_id"`
	Params      string    `gorm:"type:text" json:"-" gocrypt:"aes"` // Encrypted merged parameters
	Success     bool      `gorm:"not null" json:"success"`
	Error       string    `json:"error,omitempty"`
	Summary     string    `gorm:"type:text" json:"summary,omitempty"`
	ExecutedAt  time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"executed_at"`
}

// AvailabilitySample represents the availability_samples table
type AvailabilitySample struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceID    int64     `gorm:"not null;index" json:"device_id"`
	IsAvailable bool      `gorm:"not null" json:"is_available"`
	Error       string    `json:"error,omitempty"`
	CheckedAt   time.Time `gorm:"not null" json:"checked_at"`
}

// TableName overrides the default table name logic
func (ExecutionRecord) TableName() string    { return "operation_executions" }
func (AvailabilitySample) TableName() string { return "availability_samples" }

// GetID methods to satisfy Identifiable interface
func (e ExecutionRecord) GetID() int64    { return e.ID }
func (a AvailabilitySample) GetID() int64 { return a.ID }
