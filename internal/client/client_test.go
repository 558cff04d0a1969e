package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warydiaz/json-ingestion-platform/internal/config"
	"github.com/warydiaz/json-ingestion-platform/internal/ingest"
	"github.com/warydiaz/json-ingestion-platform/internal/metrics"
	"github.com/warydiaz/json-ingestion-platform/internal/models"
	"github.com/warydiaz/json-ingestion-platform/internal/pagination"
	"github.com/warydiaz/json-ingestion-platform/internal/server"
	"github.com/warydiaz/json-ingestion-platform/internal/service"
	"github.com/warydiaz/json-ingestion-platform/internal/store/memory"
)

const testKey = "secret"

type datasets []models.DatasetDescriptor

func (d datasets) List() ([]models.DatasetDescriptor, error)   { return d, nil }
func (d datasets) Reload() ([]models.DatasetDescriptor, error) { return d, nil }
func (d datasets) Get(id string) (models.DatasetDescriptor, error) {
	for _, ds := range d {
		if ds.DatasetID == id {
			return ds, nil
		}
	}
	return models.DatasetDescriptor{}, fmt.Errorf("%w: %s", config.ErrDatasetNotFound, id)
}

type publisher struct{}

func (publisher) PublishAll(context.Context) (int, error) { return 2, nil }

// slowRunner reports progress a few times before finishing.
type slowRunner struct{}

func (slowRunner) Run(ctx context.Context, job models.IngestJob, onProgress func(ingest.Progress)) (ingest.Result, error) {
	for i := 1; i <= 3; i++ {
		select {
		case <-ctx.Done():
			return ingest.Result{}, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
		onProgress(ingest.Progress{Records: i * 10, Batches: i, BytesTotal: -1})
	}
	return ingest.Result{DatasetID: job.DatasetID, Records: 30, Batches: 3}, nil
}

func newTestServer(t *testing.T) (*Client, *service.JobManager) {
	t.Helper()

	st := memory.New()
	records := make([]models.IngestedRecord, 5)
	for i := range records {
		records[i] = models.IngestedRecord{
			Source:        "partner-a",
			DatasetID:     "hotels",
			Payload:       map[string]any{"n": float64(i)},
			IngestionDate: time.Now().UTC(),
		}
	}
	require.NoError(t, st.InsertMany(context.Background(), records))

	jobs := service.NewJobManager(slowRunner{}, nil)
	srv := server.New(server.Deps{
		Records: pagination.New(st, nil, nil),
		Datasets: datasets{
			{DatasetID: "hotels", Source: "partner-a", SourceType: models.SourceTypeHTTP, URL: "https://example.com/h.json"},
		},
		Publisher: publisher{},
		Jobs:      jobs,
		Metrics:   metrics.NewCollector(),
	}, server.Options{APIKey: testKey}, nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		jobs.Wait()
		ts.Close()
	})
	return New(ts.URL, testKey), jobs
}

func TestClient_RecordsAndCursorWalk(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	page, err := c.Records(ctx, RecordsOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, int64(5), page.Pagination.Total)
	assert.True(t, page.Pagination.HasMore)

	var seen []string
	err = c.AllRecords(ctx, RecordsOptions{Limit: 2}, func(p *pagination.Page) error {
		for _, r := range p.Data {
			seen = append(seen, r.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 5)

	page, err = c.Records(ctx, RecordsOptions{Filters: map[string]string{"n_min": "3"}})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
}

func TestClient_ErrorsCarryCode(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	_, err := c.Records(ctx, RecordsOptions{Filters: map[string]string{"$where": "1"}})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "INVALID_FIELD_PATH", apiErr.Code)

	unauthorized := New(c.baseURL, "wrong")
	_, err = unauthorized.ListDatasets(ctx)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	_, err = c.GetJob(ctx, "missing")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(errors.New("other")))
}

func TestClient_AdminCalls(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	ds, err := c.ListDatasets(ctx)
	require.NoError(t, err)
	require.Len(t, ds, 1)

	ds, err = c.ReloadDatasets(ctx)
	require.NoError(t, err)
	assert.Len(t, ds, 1)

	res, err := c.TriggerIngestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Published)

	runs, err := c.JobHistory(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.UptimeSeconds, 0.0)
}

func TestClient_IngestAndWatch(t *testing.T) {
	c, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := c.IngestDataset(ctx, "hotels")
	require.NoError(t, err)
	assert.Equal(t, "hotels", job.DatasetID)

	_, err = c.IngestDataset(ctx, "hotels")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "JOB_IN_PROGRESS", apiErr.Code)

	var updates []service.JobSnapshot
	final, err := c.WatchJob(ctx, job.ID, func(s service.JobSnapshot) error {
		updates = append(updates, s)
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, service.JobStatusCompleted, final.Status)
	assert.Equal(t, 30, final.Records)
	assert.Greater(t, len(updates), 1, "progress is streamed before completion")

	jobs, err := c.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)

	_, err = c.IngestDataset(ctx, "unknown")
	assert.True(t, IsNotFound(err))
}

func TestClient_WatchUnknownJob(t *testing.T) {
	c, _ := newTestServer(t)

	_, err := c.WatchJob(context.Background(), "missing", func(service.JobSnapshot) error { return nil })
	assert.True(t, IsNotFound(err))
}

func TestClient_WatchStopsOnCallbackError(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	job, err := c.IngestDataset(ctx, "hotels")
	require.NoError(t, err)

	stop := errors.New("stop")
	_, err = c.WatchJob(ctx, job.ID, func(service.JobSnapshot) error { return stop })
	assert.ErrorIs(t, err, stop)
}
