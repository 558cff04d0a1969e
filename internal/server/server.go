// Package server exposes records and ingestion administration over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warydiaz/json-ingestion-platform/internal/metrics"
	"github.com/warydiaz/json-ingestion-platform/internal/models"
	"github.com/warydiaz/json-ingestion-platform/internal/pagination"
	"github.com/warydiaz/json-ingestion-platform/internal/query"
	"github.com/warydiaz/json-ingestion-platform/internal/service"
)

// RecordQuerier answers record reads. *pagination.Paginator implements it.
type RecordQuerier interface {
	Query(ctx context.Context, params query.Params) (*pagination.Page, error)
}

// DatasetSource serves dataset descriptors. *config.DatasetProvider implements it.
type DatasetSource interface {
	List() ([]models.DatasetDescriptor, error)
	Get(datasetID string) (models.DatasetDescriptor, error)
	Reload() ([]models.DatasetDescriptor, error)
}

// JobPublisher queues a job per configured dataset. *scheduler.Scheduler
// implements it.
type JobPublisher interface {
	PublishAll(ctx context.Context) (int, error)
}

// JobTracker starts and reports tracked runs. *service.JobManager implements it.
type JobTracker interface {
	Start(ctx context.Context, job models.IngestJob, trigger string) (*service.Job, error)
	GetJob(id string) (service.JobSnapshot, error)
	ListJobs() []service.JobSnapshot
	History(ctx context.Context, limit int) ([]models.JobRun, error)
}

// Pinger reports store health. *db.Client implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the routes. Pinger and Metrics may be nil.
type Deps struct {
	Records   RecordQuerier
	Datasets  DatasetSource
	Publisher JobPublisher
	Jobs      JobTracker
	Pinger    Pinger
	Metrics   *metrics.Collector
}

// Options configures the HTTP surface.
type Options struct {
	Port        int
	APIKey      string   // empty disables the key check
	RateLimit   int      // requests per minute per client IP, 0 disables
	CORSOrigins []string // allowed origins, empty disables CORS headers
}

// Server is the HTTP API.
type Server struct {
	deps    Deps
	opts    Options
	logger  *slog.Logger
	handler http.Handler
}

// New builds the router.
func New(deps Deps, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.APIKey == "" {
		logger.Warn("no API key configured, records and admin routes are unauthenticated")
	}
	s := &Server{deps: deps, opts: opts, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)
	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", apiKeyHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(APIKeyMiddleware(s.opts.APIKey))
		if s.opts.RateLimit > 0 {
			r.Use(httprate.Limit(s.opts.RateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				}),
			))
		}

		r.Get("/records", s.handleRecords)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/trigger-ingestion", s.handleTrigger)
			r.Get("/datasets", s.handleListDatasets)
			r.Post("/datasets/reload", s.handleReloadDatasets)
			r.Post("/datasets/{id}/ingest", s.handleIngestDataset)
			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/history", s.handleJobHistory)
			r.Get("/jobs/{id}", s.handleGetJob)
			r.Get("/jobs/{id}/watch", s.handleWatchJob)
			r.Get("/stats", s.handleStats)
		})
	})

	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve listens on the configured port until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.opts.Port),
		Handler:      s.handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API available", "url", fmt.Sprintf("http://localhost:%d/records", s.opts.Port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

// String names the service in supervisor logs.
func (s *Server) String() string {
	return "http-server"
}
