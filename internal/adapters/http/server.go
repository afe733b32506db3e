// Package http provides the status API server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/sceneport/internal/application"
	"github.com/jobrunner/sceneport/internal/config"
	"github.com/jobrunner/sceneport/internal/ports/input"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

// StatusReporter reports run progress.
type StatusReporter interface {
	Status() input.RunStatus
}

// ZoneLookup resolves the frame and export region of a point.
type ZoneLookup interface {
	Lookup(ctx context.Context, lon, lat float64) (*application.ZoneInfo, error)
}

// SyncTrigger runs a storage scan on demand.
type SyncTrigger interface {
	TriggerSync(ctx context.Context) (application.SyncResult, error)
}

// Inbox queues location files and reports processed ones.
type Inbox interface {
	Enqueue(key string) error
	Results() []application.InboxResult
}

// MetricsExporter instruments requests and serves the scrape endpoint.
type MetricsExporter interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

// Deps are the services behind the API. Ledger, Sync, Inbox and Metrics are
// optional; their routes are only registered when set.
type Deps struct {
	Exporter StatusReporter
	Monitor  input.JobMonitor
	Health   input.HealthChecker
	Zones    ZoneLookup
	Ledger   output.JobLedger
	Sync     SyncTrigger
	Inbox    Inbox
	Metrics  MetricsExporter
}

// Server wraps the HTTP server with application handlers.
type Server struct {
	server *http.Server
	router *mux.Router
	deps   Deps
	logger *slog.Logger
	config config.ServerConfig
}

// NewServer creates a new HTTP server.
func NewServer(cfg config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		deps:   deps,
		logger: logger,
		config: cfg,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware)
	}
	if s.config.CORS.Enabled() {
		r.Use(s.corsMiddleware)
	}

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet)
	api.HandleFunc("/zone", s.handleZone).Methods(http.MethodGet)

	if s.deps.Ledger != nil {
		api.HandleFunc("/locations/{name}/jobs", s.handleLocationJobs).Methods(http.MethodGet)
	}
	if s.deps.Sync != nil {
		api.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	}
	if s.deps.Inbox != nil {
		api.HandleFunc("/inbox", s.handleInboxResults).Methods(http.MethodGet)
		api.HandleFunc("/inbox", s.handleInboxEnqueue).Methods(http.MethodPost)
	}

	if s.deps.Metrics != nil && s.config.MetricsPath != "" {
		r.Handle(s.config.MetricsPath, s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	// OpenAPI spec and Swagger UI
	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)
	r.HandleFunc("/docs", s.handleSwaggerUI).Methods(http.MethodGet)

	if s.config.FrontendEnabled {
		r.HandleFunc("/", s.handleFrontend).Methods(http.MethodGet)
	}

	return r
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
