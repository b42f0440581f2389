// Package governance checks requests against the administrator-defined
// resource ceilings before they may be approved or provisioned.
package governance

import (
	"context"
	"fmt"
	"strings"

	"github.com/dcm-project/terraform-service-provider/internal/store"
	"github.com/dcm-project/terraform-service-provider/internal/store/model"
	"github.com/dcm-project/terraform-service-provider/internal/terraform"
)

// Violation is a single breached rule.
type Violation struct {
	Rule    string `json:"rule"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ViolationError rejects a request. It never relates to a provisioning run.
type ViolationError struct {
	Violations []Violation
}

func (e *ViolationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return "governance violation: " + strings.Join(msgs, "; ")
}

// Evaluate checks spec against every active rule and returns a
// *ViolationError listing all breaches, or nil. Values that cannot be
// parsed as a number skip the corresponding ceiling.
func Evaluate(spec model.Specification, rules model.GovernanceRuleList) error {
	var violations []Violation
	cpu, cpuOK := terraform.LeadingInt(spec.Cpu)
	ram, ramOK := terraform.LeadingInt(spec.Ram)
	disk, diskOK := terraform.LeadingInt(spec.Disk)

	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if rule.MaxCpu > 0 && cpuOK && cpu > rule.MaxCpu {
			violations = append(violations, Violation{
				Rule: rule.Name, Field: "cpu",
				Message: fmt.Sprintf("CPU %d exceeds maximum %d", cpu, rule.MaxCpu),
			})
		}
		if rule.MaxRamGB > 0 && ramOK && ram > rule.MaxRamGB {
			violations = append(violations, Violation{
				Rule: rule.Name, Field: "ram",
				Message: fmt.Sprintf("RAM %dGB exceeds maximum %dGB", ram, rule.MaxRamGB),
			})
		}
		if rule.MaxDiskGB > 0 && diskOK && disk > rule.MaxDiskGB {
			violations = append(violations, Violation{
				Rule: rule.Name, Field: "disk",
				Message: fmt.Sprintf("disk %dGB exceeds maximum %dGB", disk, rule.MaxDiskGB),
			})
		}
		if rule.RequireFirewall && !spec.NeedsFirewall {
			violations = append(violations, Violation{
				Rule: rule.Name, Field: "needsFirewall",
				Message: "a firewall is mandatory",
			})
		}
		if rule.RequireEncryption && !spec.DiskEncryption {
			violations = append(violations, Violation{
				Rule: rule.Name, Field: "diskEncryption",
				Message: "disk encryption is mandatory",
			})
		}
	}

	if len(violations) > 0 {
		return &ViolationError{Violations: violations}
	}
	return nil
}

// Check evaluates spec against the active rules held in rules.
func Check(ctx context.Context, rules store.GovernanceRule, spec model.Specification) error {
	active, err := rules.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("loading governance rules: %w", err)
	}
	return Evaluate(spec, active)
}
