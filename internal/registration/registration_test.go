package registration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dcm-project/terraform-service-provider/internal/config"
)

var _ = Describe("Registrar", func() {
	var (
		providerCfg *config.ProviderConfig
		providerID  uuid.UUID
		server      *httptest.Server
	)

	BeforeEach(func() {
		providerID = uuid.New()
		providerCfg = &config.ProviderConfig{
			ID:            providerID.String(),
			Name:          "terraform-provider",
			Endpoint:      "http://provider:8080/api/v1alpha1",
			ServiceType:   "vm",
			SchemaVersion: "v1alpha1",
			HTTPTimeout:   5 * time.Second,
		}
	})

	serve := func(endpointPath string, handler http.HandlerFunc) *Registrar {
		server = httptest.NewServer(handler)
		DeferCleanup(server.Close)
		registrar, err := NewRegistrar(providerCfg, &config.ServiceProviderManagerConfig{Endpoint: server.URL + endpointPath})
		Expect(err).NotTo(HaveOccurred())
		return registrar
	}

	problemReply := func(status int, title string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(status)
			detail := "see logs"
			_ = json.NewEncoder(w).Encode(Problem{Type: "about:blank", Title: title, Status: &status, Detail: &detail})
		}
	}

	Describe("NewRegistrar", func() {
		It("should reject an empty manager endpoint", func() {
			registrar, err := NewRegistrar(providerCfg, &config.ServiceProviderManagerConfig{})
			Expect(err).To(MatchError(ContainSubstring("empty service provider manager endpoint")))
			Expect(registrar).To(BeNil())
		})
	})

	Describe("Register", func() {
		It("should post this provider keyed by its id", func() {
			var (
				received Provider
				query    string
				path     string
				ctype    string
			)
			registrar := serve("/api/v1alpha1/", func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				query = r.URL.Query().Get("id")
				ctype = r.Header.Get("Content-Type")
				Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				_ = json.NewEncoder(w).Encode(Provider{Id: &providerID, Name: received.Name})
			})

			Expect(registrar.Register(context.Background())).To(Succeed())
			Expect(path).To(Equal("/api/v1alpha1/providers"))
			Expect(query).To(Equal(providerID.String()))
			Expect(ctype).To(HavePrefix("application/json"))
			Expect(received).To(Equal(Provider{
				Name:          "terraform-provider",
				Endpoint:      "http://provider:8080/api/v1alpha1",
				ServiceType:   "vm",
				SchemaVersion: "v1alpha1",
			}))
		})

		It("should accept an update of an existing registration without a body", func() {
			registrar := serve("", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			Expect(registrar.Register(context.Background())).To(Succeed())
		})

		DescribeTable("rejections carry the manager's problem title",
			func(status int, title, want string) {
				registrar := serve("", problemReply(status, title))
				Expect(registrar.Register(context.Background())).To(MatchError(want))
			},
			Entry("conflict", http.StatusConflict, "provider name already taken",
				"conflict registering provider: provider name already taken"),
			Entry("validation", http.StatusBadRequest, "serviceType must be one of vm, container",
				"validation error: serviceType must be one of vm, container"),
			Entry("other statuses report the code only", http.StatusServiceUnavailable, "maintenance",
				"unexpected response status: 503"),
		)

		It("should tolerate an error reply that is not a problem document", func() {
			registrar := serve("", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte("conflict"))
			})
			Expect(registrar.Register(context.Background())).To(MatchError("conflict registering provider: "))
		})

		It("should refuse a provider id that is not a UUID before calling out", func() {
			providerCfg.ID = "terraform"
			calls := 0
			registrar := serve("", func(w http.ResponseWriter, r *http.Request) { calls++ })

			Expect(registrar.Register(context.Background())).To(MatchError(ContainSubstring(`invalid provider ID "terraform"`)))
			Expect(calls).To(BeZero())
		})

		It("should report a manager that is down", func() {
			registrar := serve("", func(w http.ResponseWriter, r *http.Request) {})
			server.Close()

			err := registrar.Register(context.Background())
			Expect(err).To(MatchError(ContainSubstring("failed to register provider")))
		})

		It("should give up after the configured HTTP timeout", func() {
			providerCfg.HTTPTimeout = 100 * time.Millisecond
			registrar := serve("", func(w http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			})

			start := time.Now()
			err := registrar.Register(context.Background())
			Expect(err).To(MatchError(ContainSubstring("failed to register provider")))
			Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
		})

		It("should stop when the caller's context is cancelled", func() {
			registrar := serve("", func(w http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			})
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err := registrar.Register(ctx)
			Expect(err).To(MatchError(context.Canceled))
		})
	})
})
