package mapper

import (
	"github.com/google/uuid"

	"github.com/dcm-project/terraform-service-provider/internal/constants"
	"github.com/dcm-project/terraform-service-provider/internal/store/model"
	"github.com/dcm-project/terraform-service-provider/internal/terraform"
)

// Applied is what a successful run contributes to the VM record.
type Applied struct {
	RunID      uuid.UUID
	Outputs    map[string]string
	IPAddress  string
	ResourceID string
	// Sizing is the parsed sizing the run was materialized with.
	Sizing terraform.Sizing
}

// VMFromRequest snapshots req and the run results into a RUNNING VM. The
// copy is taken once so later edits of the request never reach it.
func VMFromRequest(req *model.Request, applied Applied) model.VM {
	sizing := applied.Sizing
	name := applied.Outputs[constants.OutputVMName]
	if name == "" {
		name = terraform.VMName(req.ID)
	}
	osVersion := req.Spec.OsVersion
	if osVersion == "" {
		osVersion = terraform.DefaultOsVersion
	}
	osType := req.Spec.OsType
	if osType == "" {
		osType = terraform.DefaultOsType
	}

	return model.VM{
		ID:            uuid.New(),
		RequestID:     req.ID,
		RunID:         applied.RunID,
		Name:          name,
		Owner:         req.Owner,
		Cpu:           sizing.Cpu,
		RamGB:         sizing.RamGB,
		DiskGB:        sizing.DiskGB,
		OsType:        osType,
		OsVersion:     osVersion,
		IPAddress:     applied.IPAddress,
		Subnet:        req.Network.Subnet,
		Datastore:     req.Network.Datastore,
		ResourceID:    applied.ResourceID,
		Location:      applied.Outputs[constants.OutputVMLocation],
		ResourceGroup: applied.Outputs[constants.OutputVMResourceGroup],
		Status:        model.VMRunning,
		Monitored:     false,
	}
}
