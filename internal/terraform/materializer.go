package terraform

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"

	"github.com/dcm-project/terraform-service-provider/internal/constants"
	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

// Defaults substituted when a numeric field cannot be parsed.
const (
	DefaultCpu    = 1
	DefaultRamGB  = 1
	DefaultDiskGB = 30

	DefaultOsType    = "Ubuntu"
	DefaultOsVersion = "22.04"
	defaultDiskType  = "Premium_LRS"
)

var leadingInt = regexp.MustCompile(`^\s*(\d+)`)

// LeadingInt extracts the integer a free-text quantity starts with, so
// "8GB" gives 8. ok is false when there is none.
func LeadingInt(s string) (int, bool) {
	m := leadingInt.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// VMName derives the machine name from the request id. The same request
// always yields the same name.
func VMName(requestID uuid.UUID) string {
	return fmt.Sprintf("vm-%s", strings.ReplaceAll(requestID.String(), "-", "")[:8])
}

// Sizing is the numeric part of a request after lenient parsing.
type Sizing struct {
	Cpu    int
	RamGB  int
	DiskGB int
}

// ParseSizing applies the leading-integer policy to every numeric field and
// logs each default it had to substitute.
func ParseSizing(spec model.Specification, logger *zap.SugaredLogger) Sizing {
	return Sizing{
		Cpu:    parseOrDefault("cpu", spec.Cpu, DefaultCpu, logger),
		RamGB:  parseOrDefault("ram", spec.Ram, DefaultRamGB, logger),
		DiskGB: parseOrDefault("disk", spec.Disk, DefaultDiskGB, logger),
	}
}

func parseOrDefault(field, raw string, def int, logger *zap.SugaredLogger) int {
	if n, ok := LeadingInt(raw); ok {
		return n
	}
	logger.Warnw("substituting default for unparseable value", "field", field, "input", raw, "default", def)
	return def
}

type variable struct {
	key   string
	value any
}

// Variables is an ordered tfvars document.
type Variables []variable

func (v Variables) Get(key string) (any, bool) {
	for _, kv := range v {
		if kv.key == key {
			return kv.value, true
		}
	}
	return nil, false
}

// Render formats the variables as an HCL attribute file. Strings go
// through hclwrite so template sequences and quotes are escaped; invalid
// UTF-8 is replaced since terraform rejects it.
func (v Variables) Render(header string) string {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	for _, kv := range v {
		body.SetAttributeValue(kv.key, ctyValue(kv.value))
	}

	var b strings.Builder
	if header != "" {
		fmt.Fprintf(&b, "# %s\n\n", header)
	}
	b.Write(f.Bytes())
	return b.String()
}

func ctyValue(value any) cty.Value {
	switch val := value.(type) {
	case string:
		return cty.StringVal(strings.ToValidUTF8(val, "\uFFFD"))
	case int:
		return cty.NumberIntVal(int64(val))
	case bool:
		return cty.BoolVal(val)
	default:
		return cty.StringVal(strings.ToValidUTF8(fmt.Sprint(val), "\uFFFD"))
	}
}

// Plan is what the materializer derives from one request. It is computed
// once per run and shared by the run record, the workspace and the VM.
type Plan struct {
	Sizing    Sizing
	Variables Variables
	Document  string
}

// Materializer turns a request into the terraform variable file.
type Materializer struct {
	adminUsername string
	location      string
	logger        *zap.SugaredLogger
}

func NewMaterializer(adminUsername, location string) *Materializer {
	return &Materializer{
		adminUsername: adminUsername,
		location:      location,
		logger:        zap.S().Named("terraform:materializer"),
	}
}

// Plan parses req and renders its variable file. The result depends only
// on req.
func (m *Materializer) Plan(req *model.Request) *Plan {
	sizing := ParseSizing(req.Spec, m.logger.With("request-id", req.ID))
	vars := m.variables(req, sizing)
	return &Plan{
		Sizing:    sizing,
		Variables: vars,
		Document:  vars.Render(fmt.Sprintf("Variables for request %s", req.ID)),
	}
}

// Variables builds the variable set for req.
func (m *Materializer) Variables(req *model.Request) Variables {
	return m.Plan(req).Variables
}

func (m *Materializer) variables(req *model.Request, sizing Sizing) Variables {
	osType := valueOr(req.Spec.OsType, DefaultOsType)
	osVersion := valueOr(req.Spec.OsVersion, DefaultOsVersion)
	publisher, offer, sku := imageFor(osType, osVersion)

	return Variables{
		{"vm_name", VMName(req.ID)},
		{"demande_id", req.ID.String()},
		{"vm_size", vmSize(sizing.Cpu, sizing.RamGB)},
		{"image_publisher", publisher},
		{"image_offer", offer},
		{"image_sku", sku},
		{"os_type", osType},
		{"os_version", osVersion},
		{"cpu_cores", sizing.Cpu},
		{"ram_gb", sizing.RamGB},
		{"disk_size", sizing.DiskGB},
		{"disk_type", valueOr(req.Spec.DiskType, defaultDiskType)},
		{"subnet_id", req.Network.Subnet},
		{"create_vnet", req.Network.Subnet == ""},
		{"assign_public_ip", req.Spec.PublicIP},
		{"enable_monitoring", req.Spec.Monitoring},
		{"disk_encryption", req.Spec.DiskEncryption},
		{"admin_username", m.adminUsername},
		{"admin_ssh_public_key_file", constants.SSHPublicKeyFile},
		{"azure_location", valueOr(req.Spec.Location, m.location)},
	}
}

// Write stores the plan's document in dir, creating dir if needed.
func (m *Materializer) Write(dir string, plan *Plan) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating workspace %s: %w", dir, err)
	}
	path := filepath.Join(dir, constants.VariablesFile)
	if err := os.WriteFile(path, []byte(plan.Document), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func valueOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func vmSize(cpu, ram int) string {
	switch {
	case cpu <= 2 && ram <= 4:
		return "Standard_B2s"
	case cpu <= 2 && ram <= 8:
		return "Standard_B2ms"
	case cpu <= 4 && ram <= 8:
		return "Standard_B4ms"
	case cpu <= 4 && ram <= 16:
		return "Standard_D2s_v3"
	case cpu <= 8 && ram <= 16:
		return "Standard_D4s_v3"
	case cpu <= 8 && ram <= 32:
		return "Standard_D8s_v3"
	default:
		return "Standard_D16s_v3"
	}
}

func imageFor(osType, version string) (publisher, offer, sku string) {
	name := strings.ToLower(osType)
	switch {
	case strings.Contains(name, "win"):
		if version == DefaultOsVersion {
			version = "2019"
		}
		return "MicrosoftWindowsServer", "WindowsServer", version + "-Datacenter"
	case strings.Contains(name, "centos"):
		return "OpenLogic", "CentOS", "8_5"
	case strings.Contains(name, "debian"):
		return "Debian", "debian-11", "11"
	case strings.Contains(name, "redhat"), strings.Contains(name, "rhel"):
		return "RedHat", "RHEL", "8.5"
	default:
		return "Canonical", "UbuntuServer", version + "-LTS"
	}
}
