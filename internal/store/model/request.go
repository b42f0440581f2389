package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RequestStatus string

const (
	RequestPending      RequestStatus = "PENDING"
	RequestValidating   RequestStatus = "VALIDATING"
	RequestToModify     RequestStatus = "A_MODIFIER"
	RequestValidated    RequestStatus = "VALIDATED"
	RequestRefused      RequestStatus = "REFUSED"
	RequestProvisioning RequestStatus = "PROVISIONING"
	RequestProvisioned  RequestStatus = "PROVISIONED"
	RequestCompleted    RequestStatus = "COMPLETED"
)

// HasNetwork reports whether a request in this status must carry network attributes.
func (s RequestStatus) HasNetwork() bool {
	switch s {
	case RequestValidated, RequestProvisioning, RequestProvisioned, RequestCompleted:
		return true
	}
	return false
}

// Specification is what the requester asked for. Numeric fields are free text
// as entered ("4", "8GB") and parsed leniently downstream.
type Specification struct {
	Cpu              string `json:"cpu"`
	Ram              string `json:"ram"`
	Disk             string `json:"disk"`
	DiskType         string `json:"diskType,omitempty"`
	OsType           string `json:"osType"`
	OsVersion        string `json:"osVersion,omitempty"`
	Location         string `json:"location,omitempty"`
	NeedsFirewall    bool   `json:"needsFirewall"`
	PublicIP         bool   `json:"publicIp"`
	Monitoring       bool   `json:"monitoring"`
	DiskEncryption   bool   `json:"diskEncryption"`
	NetworkComment   string `json:"networkComment,omitempty"`
	BusinessPurpose  string `json:"businessPurpose,omitempty"`
	RequestedVMLabel string `json:"vmLabel,omitempty"`
}

// Network is assigned by the cloud team on approval.
type Network struct {
	IPAddress string `json:"ipAddress"`
	Subnet    string `json:"subnet,omitempty"`
	Datastore string `json:"datastore,omitempty"`
}

func (n Network) IsSet() bool {
	return n.IPAddress != "" || n.Subnet != "" || n.Datastore != ""
}

type Request struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey;" json:"id"`
	Owner          string         `gorm:"not null;index" json:"owner"`
	Spec           Specification  `gorm:"embedded;embeddedPrefix:spec_" json:"spec"`
	Status         RequestStatus  `gorm:"not null;index" json:"status"`
	Network        Network        `gorm:"embedded;embeddedPrefix:net_" json:"network"`
	Justification  string         `json:"justification,omitempty"`
	ChangesComment string         `json:"changesComment,omitempty"`
	Reviewer       string         `json:"reviewer,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	ValidatedAt    *time.Time     `json:"validatedAt,omitempty"`
	ProvisioningAt *time.Time     `json:"provisioningAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

type RequestList []Request
