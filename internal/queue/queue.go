// Package queue carries ingestion jobs between the scheduler, the admin API
// and the workers over a watermill transport.
package queue

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/warydiaz/json-ingestion-platform/internal/models"
)

// TopicIngestionJob is the topic ingestion jobs are published on.
const TopicIngestionJob = "ingestion.job"

const metadataDatasetID = "dataset_id"

// ErrMalformedJob marks a message whose body is not a valid ingestion job.
// Redelivering such a message cannot succeed.
var ErrMalformedJob = errors.New("malformed ingestion job message")

// Transport is a publisher and subscriber pair sharing one lifecycle.
type Transport interface {
	message.Publisher
	message.Subscriber
}

// NewLogger adapts logger for watermill components.
func NewLogger(logger *slog.Logger) watermill.LoggerAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return watermill.NewSlogLogger(logger)
}

// EncodeJob builds the message for job.
func EncodeJob(job models.IngestJob) (*message.Message, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", job.DatasetID, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(metadataDatasetID, job.DatasetID)
	return msg, nil
}

// DecodeJob parses and validates the job carried by msg.
func DecodeJob(msg *message.Message) (models.IngestJob, error) {
	var job models.IngestJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		return job, fmt.Errorf("%w: %w", ErrMalformedJob, err)
	}
	if err := job.Validate(); err != nil {
		return job, fmt.Errorf("%w: %w", ErrMalformedJob, err)
	}
	return job, nil
}

// PublishJobs publishes one message per job on TopicIngestionJob.
func PublishJobs(pub message.Publisher, jobs ...models.IngestJob) error {
	msgs := make([]*message.Message, 0, len(jobs))
	for _, job := range jobs {
		msg, err := EncodeJob(job)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := pub.Publish(TopicIngestionJob, msgs...); err != nil {
		return fmt.Errorf("publish %d jobs: %w", len(msgs), err)
	}
	return nil
}
