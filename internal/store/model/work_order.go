package model

import (
	"time"

	"github.com/google/uuid"
)

type WorkOrderStatus string

const (
	WorkOrderPending    WorkOrderStatus = "PENDING"
	WorkOrderInProgress WorkOrderStatus = "IN_PROGRESS"
	WorkOrderComplete   WorkOrderStatus = "COMPLETE"
	WorkOrderError      WorkOrderStatus = "ERROR"
)

func (s WorkOrderStatus) Terminal() bool {
	return s == WorkOrderComplete || s == WorkOrderError
}

type WorkOrder struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;" json:"id"`
	RequestID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"requestId"`
	Assignee       *string         `json:"assignee,omitempty"`
	Status         WorkOrderStatus `gorm:"not null;index" json:"status"`
	Steps          []string        `gorm:"serializer:json" json:"steps"`
	CompletedSteps []string        `gorm:"serializer:json" json:"completedSteps"`
	Result         string          `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}

type WorkOrderList []WorkOrder
