package model

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunApplied   RunStatus = "APPLIED"
	RunError     RunStatus = "ERROR"
	RunCancelled RunStatus = "CANCELLED"
)

func (s RunStatus) Terminal() bool {
	return s == RunApplied || s == RunError || s == RunCancelled
}

// ProvisioningRun is one terraform execution for a work order. It is never
// modified once it reached a terminal status.
type ProvisioningRun struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey;" json:"id"`
	WorkOrderID  uuid.UUID         `gorm:"type:uuid;not null;index" json:"workOrderId"`
	RequestID    uuid.UUID         `gorm:"type:uuid;not null;index" json:"requestId"`
	Status       RunStatus         `gorm:"not null;index" json:"status"`
	WorkDir      string            `json:"workDir,omitempty"`
	Variables    string            `json:"variables,omitempty"`
	Output       string            `json:"output,omitempty"`
	Outputs      map[string]string `gorm:"serializer:json" json:"outputs,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	ResourceID   string            `json:"resourceId,omitempty"`
	IPAddress    string            `json:"ipAddress,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	StartedAt    *time.Time        `json:"startedAt,omitempty"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
}

type ProvisioningRunList []ProvisioningRun
