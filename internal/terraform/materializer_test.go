package terraform

import (
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dcm-project/terraform-service-provider/internal/constants"
	"github.com/dcm-project/terraform-service-provider/internal/store/model"
)

var _ = Describe("Materializer", func() {
	var (
		m   *Materializer
		req *model.Request
	)

	BeforeEach(func() {
		m = NewMaterializer("azureuser", "West Europe")
		req = &model.Request{
			ID:    uuid.MustParse("3f2a9c1e-1111-2222-3333-444455556666"),
			Owner: "alice",
			Spec: model.Specification{
				Cpu:            "4",
				Ram:            "8GB",
				OsType:         "Ubuntu",
				PublicIP:       true,
				DiskEncryption: true,
			},
			Network: model.Network{IPAddress: "10.0.0.5"},
		}
	})

	DescribeTable("LeadingInt",
		func(in string, want int, ok bool) {
			n, found := LeadingInt(in)
			Expect(found).To(Equal(ok))
			Expect(n).To(Equal(want))
		},
		Entry("plain", "4", 4, true),
		Entry("with unit", "8GB", 8, true),
		Entry("leading space", "  16 GB", 16, true),
		Entry("letters", "abc", 0, false),
		Entry("empty", "", 0, false),
		Entry("unit first", "GB8", 0, false),
	)

	Describe("ParseSizing", func() {
		It("should substitute defaults for unparseable values", func() {
			sizing := ParseSizing(model.Specification{Cpu: "abc", Ram: "", Disk: "many"}, zap.S())
			Expect(sizing).To(Equal(Sizing{Cpu: DefaultCpu, RamGB: DefaultRamGB, DiskGB: DefaultDiskGB}))
		})
	})

	Describe("Variables", func() {
		It("should derive every variable from the request", func() {
			vars := m.Variables(req)

			expect := func(key string, value any) {
				v, ok := vars.Get(key)
				Expect(ok).To(BeTrue(), key)
				Expect(v).To(Equal(value), key)
			}
			expect("vm_name", "vm-3f2a9c1e")
			expect("demande_id", req.ID.String())
			expect("cpu_cores", 4)
			expect("ram_gb", 8)
			expect("disk_size", DefaultDiskGB)
			expect("vm_size", "Standard_B4ms")
			expect("image_publisher", "Canonical")
			expect("image_sku", "22.04-LTS")
			expect("create_vnet", true)
			expect("assign_public_ip", true)
			expect("disk_encryption", true)
			expect("admin_username", "azureuser")
			expect("admin_ssh_public_key_file", constants.SSHPublicKeyFile)
			expect("azure_location", "West Europe")
		})

		It("should use the assigned subnet instead of creating a network", func() {
			req.Network.Subnet = "/subscriptions/x/subnets/a"
			vars := m.Variables(req)

			subnet, _ := vars.Get("subnet_id")
			Expect(subnet).To(Equal("/subscriptions/x/subnets/a"))
			createVnet, _ := vars.Get("create_vnet")
			Expect(createVnet).To(BeFalse())
		})

		DescribeTable("image selection",
			func(osType, version, publisher, sku string) {
				req.Spec.OsType = osType
				req.Spec.OsVersion = version
				vars := m.Variables(req)
				p, _ := vars.Get("image_publisher")
				s, _ := vars.Get("image_sku")
				Expect(p).To(Equal(publisher))
				Expect(s).To(Equal(sku))
			},
			Entry("default ubuntu", "", "", "Canonical", "22.04-LTS"),
			Entry("windows", "Windows Server", "", "MicrosoftWindowsServer", "2019-Datacenter"),
			Entry("debian", "Debian", "11", "Debian", "11"),
			Entry("rhel", "RHEL", "8", "RedHat", "8.5"),
		)

		DescribeTable("vm size",
			func(cpu, ram int, size string) {
				Expect(vmSize(cpu, ram)).To(Equal(size))
			},
			Entry("smallest", 1, 1, "Standard_B2s"),
			Entry("two cores eight gigs", 2, 8, "Standard_B2ms"),
			Entry("eight cores", 8, 32, "Standard_D8s_v3"),
			Entry("beyond the table", 32, 128, "Standard_D16s_v3"),
		)
	})

	Describe("Plan", func() {
		It("should be a pure function of the request", func() {
			Expect(m.Plan(req)).To(Equal(m.Plan(req)))
		})

		It("should carry the sizing the variables were built from", func() {
			plan := m.Plan(req)
			Expect(plan.Sizing).To(Equal(Sizing{Cpu: 4, RamGB: 8, DiskGB: DefaultDiskGB}))
			Expect(plan.Document).To(Equal(plan.Variables.Render("Variables for request " + req.ID.String())))
		})

		It("should log each substituted default once", func() {
			core, logs := observer.New(zap.WarnLevel)
			DeferCleanup(zap.ReplaceGlobals(zap.New(core)))
			m = NewMaterializer("azureuser", "West Europe")
			req.Spec.Cpu = "lots"

			plan := m.Plan(req)
			Expect(m.Write(GinkgoT().TempDir(), plan)).To(Succeed())

			substituted := logs.FilterMessage("substituting default for unparseable value")
			Expect(substituted.FilterField(zap.String("field", "cpu")).Len()).To(Equal(1))
		})
	})

	Describe("Render", func() {
		It("should produce a parseable variable file", func() {
			doc := m.Plan(req).Document
			Expect(doc).To(HavePrefix("# Variables for request " + req.ID.String() + "\n"))

			values := parseDocument(doc)
			Expect(values).To(HaveLen(len(m.Variables(req))))
			Expect(values["vm_name"].AsString()).To(Equal("vm-3f2a9c1e"))
			Expect(values["azure_location"].AsString()).To(Equal("West Europe"))
			Expect(values["cpu_cores"].Equals(cty.NumberIntVal(4)).True()).To(BeTrue())
			Expect(values["create_vnet"].True()).To(BeTrue())
			Expect(values["enable_monitoring"].False()).To(BeTrue())
		})

		It("should keep quotes inside free-text values", func() {
			req.Spec.OsVersion = `22.04" injected = "x`
			values := parseDocument(m.Plan(req).Document)
			Expect(values["os_version"].AsString()).To(Equal(`22.04" injected = "x`))
			Expect(values).NotTo(HaveKey("injected"))
		})

		It("should not let free text interpolate", func() {
			req.Spec.Location = "West ${var.region}"
			req.Spec.OsType = "Ubuntu %{ if true }x%{ endif }"
			doc := m.Plan(req).Document
			Expect(doc).To(ContainSubstring("$${var.region}"))

			values := parseDocument(doc)
			Expect(values["azure_location"].AsString()).To(Equal("West ${var.region}"))
			Expect(values["os_type"].AsString()).To(Equal("Ubuntu %{ if true }x%{ endif }"))
		})

		It("should replace invalid UTF-8", func() {
			req.Spec.DiskType = "Premium\xffLRS"
			doc := m.Plan(req).Document
			Expect(utf8.ValidString(doc)).To(BeTrue())

			values := parseDocument(doc)
			Expect(values["disk_type"].AsString()).To(Equal("Premium\uFFFDLRS"))
		})
	})

	Describe("Write", func() {
		It("should create the directory and write the variable file", func() {
			dir := filepath.Join(GinkgoT().TempDir(), "nested", "run")
			plan := m.Plan(req)
			Expect(m.Write(dir, plan)).To(Succeed())

			data, err := os.ReadFile(filepath.Join(dir, constants.VariablesFile))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal(plan.Document))
		})
	})
})

// parseDocument reads a rendered variable file the way terraform does and
// evaluates every attribute without variables or functions in scope.
func parseDocument(doc string) map[string]cty.Value {
	GinkgoHelper()
	file, diags := hclsyntax.ParseConfig([]byte(doc), constants.VariablesFile, hcl.InitialPos)
	Expect(diags.HasErrors()).To(BeFalse(), diags.Error())
	attrs, diags := file.Body.JustAttributes()
	Expect(diags.HasErrors()).To(BeFalse(), diags.Error())

	values := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		value, diags := attr.Expr.Value(nil)
		Expect(diags.HasErrors()).To(BeFalse(), diags.Error())
		values[name] = value
	}
	return values
}
