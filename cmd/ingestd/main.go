// Package main provides the ingestion server: the records API, the queue
// worker and the dataset scheduler in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warydiaz/json-ingestion-platform/internal/config"
	"github.com/warydiaz/json-ingestion-platform/internal/db"
	"github.com/warydiaz/json-ingestion-platform/internal/fetch"
	"github.com/warydiaz/json-ingestion-platform/internal/ingest"
	"github.com/warydiaz/json-ingestion-platform/internal/metrics"
	"github.com/warydiaz/json-ingestion-platform/internal/pagination"
	"github.com/warydiaz/json-ingestion-platform/internal/queue"
	"github.com/warydiaz/json-ingestion-platform/internal/scheduler"
	"github.com/warydiaz/json-ingestion-platform/internal/server"
	"github.com/warydiaz/json-ingestion-platform/internal/service"
	"github.com/warydiaz/json-ingestion-platform/internal/store"
	"github.com/warydiaz/json-ingestion-platform/internal/store/memory"
	"github.com/warydiaz/json-ingestion-platform/internal/supervisor"
	"github.com/warydiaz/json-ingestion-platform/internal/worker"
)

// Circuit breaker settings for job publishing.
const (
	breakerFailures = 5
	breakerCooldown = 30 * time.Second
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all records and job history on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	slog.SetDefault(logger)

	err := run(cfg, *wipeDB || os.Getenv("INGEST_WIPE_DB") == "true", logger)
	_ = closeLog()
	if err != nil {
		slog.Error("ingestd failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, wipe bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting ingestd", "port", cfg.ServerPort, "store", cfg.Store, "queue", cfg.Queue)

	// Storage
	var (
		st       store.Store
		dbClient *db.Client
	)
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store, records are lost on restart")
		st = memory.New()
	case config.StoreSurrealDB:
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		client, err := db.NewClient(connectCtx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err == nil {
			err = client.InitSchema(connectCtx)
		}
		cancel()
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer func() {
			if err := client.Close(context.Background()); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		}()
		dbClient = client
		st = client
	default:
		return fmt.Errorf("unknown store %q", cfg.Store)
	}

	if wipe {
		if dbClient == nil {
			logger.Warn("nothing to wipe for the in-memory store")
		} else {
			wipeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := dbClient.WipeData(wipeCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("wipe database: %w", err)
			}
			logger.Warn("database wiped")
		}
	}

	// Datasets
	datasets := config.NewDatasetProvider(cfg.DatasetsFile)
	list, err := datasets.List()
	if err != nil {
		return fmt.Errorf("load datasets: %w", err)
	}
	logger.Info("datasets loaded", "file", cfg.DatasetsFile, "datasets", len(list))

	// Ingestion
	collector := metrics.NewCollector()
	fetcher := fetch.New(fetch.Config{
		ConnectTimeout:    cfg.ConnectTimeout,
		InactivityTimeout: cfg.InactivityTimeout,
		MaxBatchCount:     cfg.BatchSize,
		MaxBatchBytes:     cfg.MaxBatchBytes,
	}, logger)
	orchestrator := ingest.New(st, fetcher, logger,
		ingest.WithBatchSize(cfg.BatchSize),
		ingest.WithMetrics(collector),
	)

	jobOpts := []service.JobManagerOption{service.WithBaseContext(ctx)}
	if dbClient != nil {
		jobOpts = append(jobOpts, service.WithJobStore(dbClient))
	}
	jobs := service.NewJobManager(orchestrator, logger, jobOpts...)

	// Queue
	transport, redeliver, closeQueue, err := openQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeQueue()

	publisher := queue.NewBreakerPublisher(transport, breakerFailures, breakerCooldown, func(from, to string) {
		logger.Warn("job publisher circuit breaker changed state", "from", from, "to", to)
	})

	sched := scheduler.New(datasets, publisher, cfg.ScheduleInterval, logger)
	wk := worker.New(transport, jobs, worker.Options{
		Concurrency: cfg.Concurrency,
		Redeliver:   redeliver,
	}, logger)

	// HTTP API
	deps := server.Deps{
		Records:   pagination.New(st, nil, logger).WithMetrics(collector),
		Datasets:  datasets,
		Publisher: sched,
		Jobs:      jobs,
		Metrics:   collector,
	}
	if dbClient != nil {
		deps.Pinger = dbClient
	}
	srv := server.New(deps, server.Options{
		Port:        cfg.ServerPort,
		APIKey:      cfg.APIKey,
		RateLimit:   cfg.RateLimit,
		CORSOrigins: cfg.CORSOrigins,
	}, logger)

	tree := supervisor.New(logger, supervisor.DefaultTreeConfig())
	tree.AddIngestionService(wk)
	tree.AddIngestionService(sched)
	tree.AddAPIService(srv)

	err = tree.Serve(ctx)
	logger.Info("shutting down")

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		logger.Warn("services did not stop in time", "services", len(report))
	}
	jobs.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("ingestd stopped")
	return nil
}

// openQueue connects the configured job transport. redeliver reports whether
// the broker redelivers nacked jobs with a bounded delivery count.
func openQueue(ctx context.Context, cfg config.Config, logger *slog.Logger) (t queue.Transport, redeliver bool, closeFn func(), err error) {
	wmLogger := queue.NewLogger(logger)

	switch cfg.Queue {
	case config.QueueMemory:
		gc := queue.NewMemory(wmLogger)
		return gc, false, func() {
			if err := gc.Close(); err != nil {
				logger.Warn("failed to close queue", "error", err)
			}
		}, nil

	case config.QueueNATS:
		url := cfg.NATSURL
		var embedded *queue.EmbeddedServer
		if cfg.NATSEmbedded {
			embedded, err = queue.StartEmbedded("127.0.0.1", cfg.NATSPort, cfg.NATSStoreDir)
			if err != nil {
				return nil, false, nil, fmt.Errorf("start embedded NATS: %w", err)
			}
			url = embedded.ClientURL()
			logger.Info("embedded NATS server started", "url", url, "store_dir", cfg.NATSStoreDir)
		}

		n, err := queue.NewNATS(ctx, queue.NATSConfig{
			URL:         url,
			MaxDeliver:  cfg.QueueMaxDeliver,
			Subscribers: cfg.Concurrency,
		}, wmLogger)
		if err != nil {
			if embedded != nil {
				_ = embedded.Shutdown(context.Background())
			}
			return nil, false, nil, fmt.Errorf("connect to NATS: %w", err)
		}

		return n, true, func() {
			if err := n.Close(); err != nil {
				logger.Warn("failed to close queue", "error", err)
			}
			if embedded != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := embedded.Shutdown(shutdownCtx); err != nil {
					logger.Warn("embedded NATS shutdown", "error", err)
				}
			}
		}, nil

	default:
		return nil, false, nil, fmt.Errorf("unknown queue %q", cfg.Queue)
	}
}
