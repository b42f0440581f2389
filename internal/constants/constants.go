package constants

// Environment variables the terraform azurerm provider reads its service
// principal from. Values are injected from configuration, never compiled in.
const (
	EnvARMClientID       = "ARM_CLIENT_ID"
	EnvARMClientSecret   = "ARM_CLIENT_SECRET"
	EnvARMTenantID       = "ARM_TENANT_ID"
	EnvARMSubscriptionID = "ARM_SUBSCRIPTION_ID"
)

// Terraform output names queried after a successful apply
const (
	OutputVMID            = "vm_id"
	OutputVMPublicIP      = "vm_public_ip"
	OutputVMPrivateIP     = "vm_private_ip"
	OutputVMFQDN          = "vm_fqdn"
	OutputVMLocation      = "vm_location"
	OutputVMResourceGroup = "vm_resource_group_name"
	OutputVMName          = "vm_name"
	OutputDemandeID       = "demande_id"
)

// DefaultOutputs is the list of outputs extracted when none is configured.
var DefaultOutputs = []string{
	OutputVMID,
	OutputVMPublicIP,
	OutputVMPrivateIP,
	OutputVMFQDN,
	OutputVMLocation,
	OutputVMResourceGroup,
	OutputVMName,
	OutputDemandeID,
}

// IPNotFound is recorded when no output in the preference order yielded an address.
const IPNotFound = "not-found"

// Notification recipients addressed by role rather than user id
const (
	RoleCloudTeam = "role:cloud-team"
	RoleSupport   = "role:support"
)

// DefaultWorkOrderSteps are the provisioning steps attached to every new work order.
var DefaultWorkOrderSteps = []string{
	"VM creation",
	"Network configuration",
	"Storage configuration",
	"OS installation",
	"Security configuration",
	"Firewall configuration",
	"Validation tests",
}

const (
	// ExecutionsDir is the directory under the work root holding one workspace per run
	ExecutionsDir = "executions"

	// VariablesFile is the file the materializer writes inside a run workspace
	VariablesFile = "terraform.tfvars"

	// WorkspaceLockFile is flock-ed for the lifetime of a run
	WorkspaceLockFile = ".provision.lock"

	// SSHPublicKeyFile is the name the public key is copied to inside a workspace
	SSHPublicKeyFile = "id_rsa.pub"
)
