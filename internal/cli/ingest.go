package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/warydiaz/json-ingestion-platform/internal/config"
	"github.com/warydiaz/json-ingestion-platform/internal/db"
	"github.com/warydiaz/json-ingestion-platform/internal/fetch"
	"github.com/warydiaz/json-ingestion-platform/internal/ingest"
	"github.com/warydiaz/json-ingestion-platform/internal/service"
	"github.com/warydiaz/json-ingestion-platform/internal/store"
	"github.com/warydiaz/json-ingestion-platform/internal/store/memory"
)

const localPollInterval = 200 * time.Millisecond

var (
	ingestLocal  bool
	ingestNoWait bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <dataset-id>",
	Short: "Ingest one dataset now",
	Long: `Start an ingestion run for one configured dataset and follow its progress.

By default the server runs the job and the command streams its progress;
Ctrl+C detaches and leaves the job running. With --local the dataset is
fetched and written from this process, using the datasets file and store
settings from the environment.

Examples:
  ingestctl ingest hotels
  ingestctl ingest hotels --no-wait
  INGEST_STORE=surrealdb ingestctl ingest hotels --local`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestLocal, "local", false, "run the ingestion in this process")
	ingestCmd.Flags().BoolVar(&ingestNoWait, "no-wait", false, "print the job id and return without following progress")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestLocal {
		return runLocalIngest(cmd, args[0])
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	job, err := apiClient.IngestDataset(ctx, args[0])
	if err != nil {
		return fmt.Errorf("start ingestion: %w", err)
	}
	if ingestNoWait {
		fmt.Fprintf(cmd.OutOrStdout(), "Started job %s\n", job.ID)
		return nil
	}

	updates := make(chan jobUpdate)
	go func() {
		defer close(updates)
		_, err := apiClient.WatchJob(ctx, job.ID, func(s service.JobSnapshot) error {
			return send(ctx, updates, jobUpdate{job: s})
		})
		if err != nil && ctx.Err() == nil {
			_ = send(ctx, updates, jobUpdate{err: fmt.Errorf("watch job: %w", err)})
		}
	}()

	return RunJobProgress(cmd.OutOrStdout(), job.ID, true, updates)
}

func runLocalIngest(cmd *cobra.Command, datasetID string) error {
	level := slog.LevelWarn
	if verbose {
		level = cfg.LogLevel
	}
	logger, closeLog := config.SetupLogger(cfg.LogFile, level)
	defer closeLog()

	dataset, err := config.NewDatasetProvider(cfg.DatasetsFile).Get(datasetID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	st, jobStore, closeStore, err := openLocalStore(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	fetcher := fetch.New(fetch.Config{
		ConnectTimeout:    cfg.ConnectTimeout,
		InactivityTimeout: cfg.InactivityTimeout,
		MaxBatchCount:     cfg.BatchSize,
		MaxBatchBytes:     cfg.MaxBatchBytes,
	}, logger)
	orchestrator := ingest.New(st, fetcher, logger, ingest.WithBatchSize(cfg.BatchSize))

	opts := []service.JobManagerOption{service.WithBaseContext(ctx)}
	if jobStore != nil {
		opts = append(opts, service.WithJobStore(jobStore))
	}
	jobs := service.NewJobManager(orchestrator, logger, opts...)

	job, err := jobs.Start(ctx, dataset.Job(), service.TriggerCLI)
	if err != nil {
		return err
	}

	updates := make(chan jobUpdate)
	go func() {
		defer close(updates)
		pollJob(ctx, jobs, job.ID, updates)
	}()

	err = RunJobProgress(cmd.OutOrStdout(), job.ID, false, updates)
	cancel()
	jobs.Wait()
	return err
}

// pollJob forwards snapshots of a local job until it finishes.
func pollJob(ctx context.Context, jobs *service.JobManager, id string, updates chan<- jobUpdate) {
	ticker := time.NewTicker(localPollInterval)
	defer ticker.Stop()
	for {
		snap, err := jobs.GetJob(id)
		if err != nil {
			_ = send(ctx, updates, jobUpdate{err: err})
			return
		}
		if err := send(ctx, updates, jobUpdate{job: snap}); err != nil || snap.Done() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func send(ctx context.Context, ch chan<- jobUpdate, u jobUpdate) error {
	select {
	case ch <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// openLocalStore opens the configured store. The job store is nil for the
// in-memory backend.
func openLocalStore(ctx context.Context, logger *slog.Logger) (store.Store, service.JobStore, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.New(), nil, func() {}, nil
	case config.StoreSurrealDB:
		client, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := client.InitSchema(ctx); err != nil {
			_ = client.Close(context.WithoutCancel(ctx))
			return nil, nil, nil, fmt.Errorf("initialize schema: %w", err)
		}
		closeFn := func() {
			if err := client.Close(context.Background()); err != nil {
				logger.Warn("failed to close database", "error", err)
			}
		}
		return client, client, closeFn, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
