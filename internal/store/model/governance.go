package model

import (
	"time"

	"github.com/google/uuid"
)

// GovernanceRule is an administrator-defined ceiling a request must satisfy.
// Zero ceilings are not checked.
type GovernanceRule struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey;" json:"id"`
	Name              string    `gorm:"not null;uniqueIndex" json:"name" yaml:"name" validate:"required"`
	MaxRamGB          int       `json:"maxRamGb" yaml:"maxRamGb" validate:"gte=0"`
	MaxCpu            int       `json:"maxCpu" yaml:"maxCpu" validate:"gte=0"`
	MaxDiskGB         int       `json:"maxDiskGb" yaml:"maxDiskGb" validate:"gte=0"`
	RequireFirewall   bool      `json:"requireFirewall" yaml:"requireFirewall"`
	RequireEncryption bool      `json:"requireEncryption" yaml:"requireEncryption"`
	Active            bool      `gorm:"index" json:"active" yaml:"active"`
	CreatedAt         time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt         time.Time `json:"updatedAt" yaml:"-"`
}

type GovernanceRuleList []GovernanceRule
