package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dcm-project/terraform-service-provider/internal/config"
	handlers "github.com/dcm-project/terraform-service-provider/internal/handlers/v1alpha1"
	"github.com/dcm-project/terraform-service-provider/internal/metrics"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
	baseURL                 = "/api/v1alpha1"
)

// RouteMounter mounts API routes on a router.
type RouteMounter interface {
	Routes(r chi.Router)
}

type Server struct {
	cfg      *config.Config
	listener net.Listener
	handler  RouteMounter
}

func New(cfg *config.Config, listener net.Listener, handler RouteMounter) *Server {
	return &Server{
		cfg:      cfg,
		listener: listener,
		handler:  handler,
	}
}

// Router builds the HTTP routes served by Run.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", handlers.GetHealth)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	router.Route(baseURL, func(r chi.Router) {
		r.Get("/health", handlers.GetHealth)
		s.handler.Routes(r)
	})
	return router
}

func (s *Server) Run(ctx context.Context) error {
	srv := http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
	}()

	zap.S().Named("api_server").Infow("serving API", "address", s.listener.Addr().String(), "base-url", baseURL)
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
