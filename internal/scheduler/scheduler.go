// Package scheduler publishes an ingestion job for every configured dataset
// on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/warydiaz/json-ingestion-platform/internal/metrics"
	"github.com/warydiaz/json-ingestion-platform/internal/models"
	"github.com/warydiaz/json-ingestion-platform/internal/queue"
)

// DatasetLister returns the configured datasets. *config.DatasetProvider
// implements it.
type DatasetLister interface {
	List() ([]models.DatasetDescriptor, error)
}

// Scheduler publishes one job per dataset each tick.
type Scheduler struct {
	datasets  DatasetLister
	publisher message.Publisher
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a scheduler. An interval of zero or less disables ticking;
// PublishAll still works for manual triggers.
func New(datasets DatasetLister, publisher message.Publisher, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		datasets:  datasets,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
	}
}

// PublishAll publishes a job for every configured dataset and returns how
// many were published.
func (s *Scheduler) PublishAll(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	datasets, err := s.datasets.List()
	if err != nil {
		return 0, fmt.Errorf("list datasets: %w", err)
	}

	s.logger.Info("publishing ingestion jobs", "datasets", len(datasets))

	jobs := make([]models.IngestJob, 0, len(datasets))
	for _, d := range datasets {
		s.logger.Debug("publishing job", "dataset_id", d.DatasetID, "description", d.Description)
		jobs = append(jobs, d.Job())
	}
	if err := queue.PublishJobs(s.publisher, jobs...); err != nil {
		return 0, err
	}
	metrics.JobsPublished.Add(float64(len(jobs)))
	return len(jobs), nil
}

// Serve ticks until ctx is done. A failed tick is logged and the next tick
// tries again.
func (s *Scheduler) Serve(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("scheduler disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	s.logger.Info("scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.PublishAll(ctx); err != nil {
				s.logger.Error("scheduled publish failed", "error", err)
			}
		}
	}
}

// String names the service in supervisor logs.
func (s *Scheduler) String() string {
	return "scheduler"
}
