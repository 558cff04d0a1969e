package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warydiaz/json-ingestion-platform/internal/models"
)

func startNATS(t *testing.T) *NATS {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping embedded NATS test in short mode")
	}

	srv, err := StartEmbedded("127.0.0.1", -1, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	transport, err := NewNATS(context.Background(), NATSConfig{
		URL:        srv.ClientURL(),
		MaxDeliver: 3,
		AckWait:    time.Second,
	}, NewLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = transport.Close() })
	return transport
}

func TestNATSTransport_RedeliversNackedJobs(t *testing.T) {
	transport := startNATS(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	messages, err := transport.Subscribe(ctx, TopicIngestionJob)
	require.NoError(t, err)

	job := models.IngestJob{DatasetID: "hotels", SourceType: models.SourceTypeHTTP, URL: "https://example.com/h.json"}
	require.NoError(t, PublishJobs(transport, job))

	var deliveries int
	for deliveries < 2 {
		select {
		case msg := <-messages:
			got, err := DecodeJob(msg)
			require.NoError(t, err)
			assert.Equal(t, job, got)
			deliveries++
			if deliveries == 1 {
				msg.Nack()
			} else {
				msg.Ack()
			}
		case <-ctx.Done():
			t.Fatalf("received %d deliveries before timeout", deliveries)
		}
	}
	assert.Equal(t, 2, deliveries)
}
