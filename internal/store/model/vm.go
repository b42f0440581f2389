package model

import (
	"time"

	"github.com/google/uuid"
)

type VMStatus string

const (
	VMCreated VMStatus = "CREATED"
	VMRunning VMStatus = "RUNNING"
	VMStopped VMStatus = "STOPPED"
	VMError   VMStatus = "ERROR"
	VMDeleted VMStatus = "DELETED"
)

// VM is a snapshot taken when the run applied. Later edits to the request
// do not reach it.
type VM struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;" json:"id"`
	RequestID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"requestId"`
	RunID         uuid.UUID `gorm:"type:uuid;not null" json:"runId"`
	Name          string    `gorm:"not null" json:"name"`
	Owner         string    `gorm:"not null;index" json:"owner"`
	Cpu           int       `json:"cpu"`
	RamGB         int       `json:"ramGb"`
	DiskGB        int       `json:"diskGb"`
	OsType        string    `json:"osType"`
	OsVersion     string    `json:"osVersion"`
	IPAddress     string    `json:"ipAddress"`
	Subnet        string    `json:"subnet,omitempty"`
	Datastore     string    `json:"datastore,omitempty"`
	ResourceID    string    `json:"resourceId,omitempty"`
	Location      string    `json:"location,omitempty"`
	ResourceGroup string    `json:"resourceGroup,omitempty"`
	Status        VMStatus  `gorm:"not null" json:"status"`
	Monitored     bool      `json:"monitored"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type VMList []VM
