// Package server wires the HTTP router, middleware chain, and every
// handler in SPEC_FULL §6 into a single *http.Server, grounded on the
// teacher's api-gateway Server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/distnode/ringkv/internal/config"
	"github.com/distnode/ringkv/internal/handler"
	"github.com/distnode/ringkv/internal/health"
	"github.com/distnode/ringkv/internal/metrics"
	"github.com/distnode/ringkv/internal/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server owns the mux.Router and the underlying *http.Server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	handlers    *handler.Handlers
	health      *health.Checker
	metrics     *metrics.Metrics
	metricsPath string
	logger      *zap.Logger
	cfg         *config.Config
}

// NewServer builds a Server ready for SetupRoutes.
func NewServer(cfg *config.Config, handlers *handler.Handlers, healthChecker *health.Checker, m *metrics.Metrics, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		router:      router,
		httpServer:  httpServer,
		handlers:    handlers,
		health:      healthChecker,
		metrics:     m,
		metricsPath: cfg.Metrics.Path,
		logger:      logger,
		cfg:         cfg,
	}
}

// SetupRoutes registers the middleware chain and every route named in
// SPEC_FULL §6, plus the additive health/metrics endpoints.
func (s *Server) SetupRoutes() {
	mws := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.CORS([]string{"*"}),
		middleware.Timeout(s.cfg.Server.RequestTimeout),
	}
	if s.cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(s.cfg.RateLimit.RequestsPerSecond, s.cfg.RateLimit.BurstSize, s.logger)
		mws = append(mws, rateLimiter.Limit)
	}
	chain := middleware.Chain(mws...)
	s.router.Use(func(next http.Handler) http.Handler { return chain(next) })

	// Bit-compatible data-plane surface (SPEC_FULL §6).
	s.router.HandleFunc("/api/data", s.handlers.PutData).Methods(http.MethodPost)
	s.router.HandleFunc("/api/data/all", s.handlers.GetAllData).Methods(http.MethodGet)
	s.router.HandleFunc("/api/data/primary", s.handlers.GetPrimaryData).Methods(http.MethodGet)
	s.router.HandleFunc("/api/data/{key}", s.handlers.GetData).Methods(http.MethodGet)
	s.router.HandleFunc("/api/data/{key}", s.handlers.DeleteData).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/replica/bulk/{level}", s.handlers.PutBulkReplica).Methods(http.MethodPost)
	s.router.HandleFunc("/api/replica/{level}", s.handlers.PutReplica).Methods(http.MethodPost)
	s.router.HandleFunc("/api/replica/{key}", s.handlers.DeleteReplica).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/nodes", s.handlers.GetNodes).Methods(http.MethodGet)
	s.router.HandleFunc("/api/rebalance", s.handlers.Rebalance).Methods(http.MethodPost)
	s.router.HandleFunc("/api/health", s.handlers.Health).Methods(http.MethodGet)

	// Additive probes and metrics exposition; these do not alter
	// /api/health's documented behavior (SPEC_FULL §6 note).
	s.router.HandleFunc("/healthz/live", s.health.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz/ready", s.health.ReadinessHandler).Methods(http.MethodGet)
	if s.cfg.Metrics.Enabled {
		s.router.Handle(s.metricsPath, promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// Router middleware only runs on a matched route, so preflight
	// OPTIONS requests get a catch-all route for the CORS stage to answer.
	s.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"found":false,"message":"endpoint not found"}`))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"found":false,"message":"method not allowed"}`))
	})
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// GetRouter returns the underlying router, for tests.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// GetHandler returns the server's http.Handler, for tests.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// StartAsync launches Start in a goroutine and returns a channel that
// receives its error, if any, once the server stops.
func (s *Server) StartAsync() chan error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errChan <- err
		}
		close(errChan)
	}()
	time.Sleep(100 * time.Millisecond)
	return errChan
}
