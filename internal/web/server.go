// Package web provides the HTTP API for period parsing, interval generation
// and ingestion runs.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/aggrada/internal/config"
	"github.com/JonMunkholm/aggrada/internal/ingest"
	weblog "github.com/JonMunkholm/aggrada/internal/web/middleware"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Runner executes ingestion jobs. *ingest.Pipeline satisfies it.
type Runner interface {
	RunFile(ctx context.Context, job ingest.Job) (ingest.Metrics, error)
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Config   *config.Config
	Store    Pinger
	Runner   Runner
	Limiter  *ingest.RunLimiter
	Gatherer prometheus.Gatherer
}

// Server is the HTTP server for the ingester.
type Server struct {
	cfg      *config.Config
	store    Pinger
	runner   Runner
	limiter  *ingest.RunLimiter
	gatherer prometheus.Gatherer
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new Server instance.
func NewServer(d Deps) *Server {
	s := &Server{
		cfg:      d.Config,
		store:    d.Store,
		runner:   d.Runner,
		limiter:  d.Limiter,
		gatherer: d.Gatherer,
		router:   chi.NewRouter(),
	}
	if s.limiter == nil {
		s.limiter = ingest.NewRunLimiter(s.cfg.Ingest.MaxConcurrent, s.cfg.Ingest.MaxWaitTime)
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(weblog.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api", func(r chi.Router) {
		// Quick, read-only endpoints share a request timeout.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(15 * time.Second))
			r.Get("/period", s.handlePeriod)
			r.Get("/intervals", s.handleIntervals)
			r.Get("/ingest/status", s.handleIngestStatus)
		})

		// Runs are bounded by INGEST_TIMEOUT instead.
		r.Post("/ingest", s.handleIngest)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	sc := s.cfg.Server
	s.server = &http.Server{
		Addr:         sc.Addr(),
		Handler:      s.router,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  sc.IdleTimeout,
	}

	slog.Info("starting server", "addr", sc.Addr())
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for active runs to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)

	if st := s.limiter.Status(); st.Active > 0 {
		slog.Info("waiting for ingestion runs to finish", "active", st.Active)
		if derr := s.limiter.WaitForDrain(ctx); derr != nil {
			slog.Warn("ingestion runs still active at shutdown", "active", s.limiter.Status().Active)
		}
	}
	return err
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
