// Package worker consumes ingestion jobs from the queue and runs them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/warydiaz/json-ingestion-platform/internal/models"
	"github.com/warydiaz/json-ingestion-platform/internal/queue"
	"github.com/warydiaz/json-ingestion-platform/internal/service"
)

// Executor runs one job to completion. *service.JobManager implements it.
type Executor interface {
	Execute(ctx context.Context, job models.IngestJob, trigger string) (service.JobSnapshot, error)
}

// Options configures a Worker.
type Options struct {
	// Concurrency bounds the jobs run at once. Defaults to 1.
	Concurrency int

	// Redeliver holds each message until its job finishes and nacks failed
	// jobs so the broker delivers them again. Without it a message is acked
	// on receipt and failures are only logged, which suits transports that
	// redeliver a nacked message immediately and forever.
	Redeliver bool
}

// Worker pulls jobs from a subscriber.
type Worker struct {
	sub      message.Subscriber
	executor Executor
	opts     Options
	logger   *slog.Logger
}

// New creates a worker.
func New(sub message.Subscriber, executor Executor, opts Options, logger *slog.Logger) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sub: sub, executor: executor, opts: opts, logger: logger}
}

// Serve consumes jobs until ctx is done, then waits for in-flight jobs.
func (w *Worker) Serve(ctx context.Context) error {
	messages, err := w.sub.Subscribe(ctx, queue.TopicIngestionJob)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", queue.TopicIngestionJob, err)
	}

	w.logger.Info("worker started", "concurrency", w.opts.Concurrency, "redeliver", w.opts.Redeliver)

	sem := make(chan struct{}, w.opts.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("job subscription closed")
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				msg.Nack()
				return ctx.Err()
			}
			if !w.opts.Redeliver {
				msg.Ack()
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				w.handle(ctx, msg)
			}()
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg *message.Message) {
	job, err := queue.DecodeJob(msg)
	if err != nil {
		// Redelivery cannot fix a malformed message.
		w.logger.Error("dropping malformed job", "message_id", msg.UUID, "error", err)
		w.ack(msg)
		return
	}

	w.logger.Info("received ingestion job", "dataset_id", job.DatasetID, "message_id", msg.UUID)

	snap, err := w.executor.Execute(ctx, job, service.TriggerQueue)
	if errors.Is(err, service.ErrJobInProgress) {
		// The run already in flight replaces the dataset.
		w.logger.Info("skipping job, dataset already ingesting", "dataset_id", job.DatasetID, "error", err)
		w.ack(msg)
		return
	}
	if err != nil {
		if w.opts.Redeliver {
			w.logger.Warn("ingestion failed, requesting redelivery",
				"dataset_id", job.DatasetID, "job_id", snap.ID, "error", err)
			msg.Nack()
			return
		}
		w.logger.Error("ingestion failed", "dataset_id", job.DatasetID, "job_id", snap.ID, "error", err)
		return
	}
	w.ack(msg)
}

func (w *Worker) ack(msg *message.Message) {
	if w.opts.Redeliver {
		msg.Ack()
	}
}

// String names the service in supervisor logs.
func (w *Worker) String() string {
	return "worker"
}
