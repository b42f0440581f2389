package apiserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dcm-project/terraform-service-provider/internal/config"
)

type pingRoutes struct{}

func (pingRoutes) Routes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
}

var _ = Describe("Server", func() {
	var server *Server

	BeforeEach(func() {
		server = New(&config.Config{}, nil, pingRoutes{})
	})

	DescribeTable("routes",
		func(path string, status int, body string) {
			rec := httptest.NewRecorder()
			server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			Expect(rec.Code).To(Equal(status))
			Expect(rec.Body.String()).To(ContainSubstring(body))
		},
		Entry("root health", "/health", http.StatusOK, "OK"),
		Entry("versioned health", "/api/v1alpha1/health", http.StatusOK, "OK"),
		Entry("mounted routes", "/api/v1alpha1/ping", http.StatusOK, "pong"),
		Entry("metrics", "/metrics", http.StatusOK, "go_goroutines"),
		Entry("unknown path", "/api/v1alpha1/nope", http.StatusNotFound, ""),
	)

	It("should serve until its context is done", func() {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		server = New(&config.Config{}, listener, pingRoutes{})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- server.Run(ctx) }()

		url := fmt.Sprintf("http://%s/api/v1alpha1/ping", listener.Addr())
		Eventually(func() (string, error) {
			resp, err := http.Get(url)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			return string(body), err
		}).Should(Equal("pong"))

		cancel()
		Eventually(done, 6*time.Second).Should(Receive(BeNil()))
	})
})
