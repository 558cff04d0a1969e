package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warydiaz/json-ingestion-platform/internal/config"
	"github.com/warydiaz/json-ingestion-platform/internal/ingest"
	"github.com/warydiaz/json-ingestion-platform/internal/models"
	"github.com/warydiaz/json-ingestion-platform/internal/pagination"
	"github.com/warydiaz/json-ingestion-platform/internal/server"
	"github.com/warydiaz/json-ingestion-platform/internal/service"
	"github.com/warydiaz/json-ingestion-platform/internal/store/memory"
)

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{"city=lyon", "stars_min=4", "expr=a=b", " datasetId =hotels"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"city": "lyon", "stars_min": "4", "expr": "a=b", "datasetId": "hotels"}, got)

	for _, bad := range []string{"city", "=lyon", " =x"} {
		_, err := parseFilters([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "50.0 MiB", formatBytes(50*1024*1024))
}

func TestProgressFraction(t *testing.T) {
	assert.Zero(t, progressFraction(service.JobSnapshot{BytesRead: 10, BytesTotal: -1}))
	assert.InDelta(t, 0.25, progressFraction(service.JobSnapshot{BytesRead: 25, BytesTotal: 100}), 1e-9)
	assert.Equal(t, 1.0, progressFraction(service.JobSnapshot{BytesRead: 120, BytesTotal: 100}))
}

func feed(updates ...jobUpdate) <-chan jobUpdate {
	ch := make(chan jobUpdate, len(updates))
	for _, u := range updates {
		ch <- u
	}
	close(ch)
	return ch
}

func TestPrintJobProgress(t *testing.T) {
	done := time.Now()
	running := service.JobSnapshot{ID: "j1", Status: service.JobStatusRunning, Records: 10, Batches: 1}
	completed := service.JobSnapshot{ID: "j1", Status: service.JobStatusCompleted, Records: 20, Batches: 2, CompletedAt: &done}

	t.Run("completed", func(t *testing.T) {
		var out bytes.Buffer
		err := printJobProgress(&out, feed(jobUpdate{job: running}, jobUpdate{job: completed}))
		require.NoError(t, err)
		assert.Contains(t, out.String(), "[running] 10 records")
		assert.Contains(t, out.String(), "Records ingested:  20")
	})

	t.Run("failed", func(t *testing.T) {
		failed := service.JobSnapshot{Status: service.JobStatusFailed, Error: "fetch failed"}
		err := printJobProgress(&bytes.Buffer{}, feed(jobUpdate{job: failed}))
		assert.EqualError(t, err, "fetch failed")
	})

	t.Run("stream error", func(t *testing.T) {
		boom := errors.New("watch broke")
		err := printJobProgress(&bytes.Buffer{}, feed(jobUpdate{job: running}, jobUpdate{err: boom}))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("closed early", func(t *testing.T) {
		err := printJobProgress(&bytes.Buffer{}, feed(jobUpdate{job: running}))
		assert.ErrorContains(t, err, "closed before the job finished")
	})

	t.Run("skipped", func(t *testing.T) {
		var out bytes.Buffer
		skipped := service.JobSnapshot{DatasetID: "archive", Status: service.JobStatusSkipped}
		require.NoError(t, printJobProgress(&out, feed(jobUpdate{job: skipped})))
		assert.Contains(t, out.String(), "Skipped")
	})
}

func TestProgressModel_Transitions(t *testing.T) {
	m := newProgressModel("j1", true, nil)

	next, _ := m.Update(jobUpdate{job: service.JobSnapshot{Status: service.JobStatusRunning, Records: 5, BytesTotal: -1}})
	m = next.(progressModel)
	assert.False(t, m.done)
	assert.Contains(t, m.renderContent(), "5 records")
	assert.Contains(t, m.renderContent(), "continue in background")

	next, _ = m.Update(jobUpdate{job: service.JobSnapshot{Status: service.JobStatusFailed, Error: "boom"}})
	m = next.(progressModel)
	assert.True(t, m.done)
	assert.EqualError(t, m.err, "boom")

	m = newProgressModel("j2", false, nil)
	next, _ = m.Update(streamClosedMsg{})
	m = next.(progressModel)
	assert.True(t, m.done)
	assert.Error(t, m.err)

	m = newProgressModel("j3", false, nil)
	next, cmd := m.Update(tea.KeyPressMsg{Code: 'q', Text: "q"})
	m = next.(progressModel)
	assert.True(t, m.quitting)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.renderContent(), "stopped")
}

type testDatasets []models.DatasetDescriptor

func (d testDatasets) List() ([]models.DatasetDescriptor, error)   { return d, nil }
func (d testDatasets) Reload() ([]models.DatasetDescriptor, error) { return d, nil }
func (d testDatasets) Get(id string) (models.DatasetDescriptor, error) {
	for _, ds := range d {
		if ds.DatasetID == id {
			return ds, nil
		}
	}
	return models.DatasetDescriptor{}, fmt.Errorf("%w: %s", config.ErrDatasetNotFound, id)
}

type testPublisher struct{}

func (testPublisher) PublishAll(context.Context) (int, error) { return 1, nil }

type instantRunner struct{}

func (instantRunner) Run(_ context.Context, job models.IngestJob, onProgress func(ingest.Progress)) (ingest.Result, error) {
	onProgress(ingest.Progress{Records: 3, Batches: 1, BytesTotal: -1})
	return ingest.Result{DatasetID: job.DatasetID, Records: 3, Batches: 1}, nil
}

// execute runs ingestctl against an in-process API server.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	st := memory.New()
	require.NoError(t, st.InsertMany(context.Background(), []models.IngestedRecord{
		{Source: "partner-a", DatasetID: "hotels", Payload: map[string]any{"city": "Lyon"}, IngestionDate: time.Now()},
		{Source: "partner-a", DatasetID: "hotels", Payload: map[string]any{"city": "Paris"}, IngestionDate: time.Now()},
	}))
	jobs := service.NewJobManager(instantRunner{}, nil)
	srv := server.New(server.Deps{
		Records:   pagination.New(st, nil, nil),
		Datasets:  testDatasets{{DatasetID: "hotels", SourceType: models.SourceTypeHTTP, URL: "https://example.com/h.json"}},
		Publisher: testPublisher{},
		Jobs:      jobs,
	}, server.Options{APIKey: "k"}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		jobs.Wait()
		ts.Close()
	})

	// Flag values are package globals and survive between executions.
	recordsFilters, recordsLimit, recordsCursor, recordsAll, recordsJSON = nil, 0, "", false, false
	ingestLocal, ingestNoWait = false, false
	jobsHistory, jobsLimit = false, 50

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--url", ts.URL, "--api-key", "k"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands(t *testing.T) {
	out, err := execute(t, "records", "--filter", "city=lyon")
	require.NoError(t, err)
	assert.Contains(t, out, `"city":"Lyon"`)
	assert.Contains(t, out, "Showing 1 of 1 records")

	out, err = execute(t, "records", "--limit", "1", "--all", "--json")
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte("\n")))

	_, err = execute(t, "records", "--filter", "$where=1")
	assert.ErrorContains(t, err, "INVALID_FIELD_PATH")

	out, err = execute(t, "datasets")
	require.NoError(t, err)
	assert.Contains(t, out, "- hotels [http]")

	out, err = execute(t, "trigger")
	require.NoError(t, err)
	assert.Contains(t, out, "Ingestion jobs published successfully (1 jobs)")

	out, err = execute(t, "ingest", "hotels")
	require.NoError(t, err)
	assert.Contains(t, out, "Records ingested:  3")

	out, err = execute(t, "ingest", "hotels", "--no-wait")
	require.NoError(t, err)
	assert.Contains(t, out, "Started job")

	out, err = execute(t, "jobs")
	require.NoError(t, err)
	assert.Contains(t, out, "No jobs found")

	_, err = execute(t, "jobs", "missing")
	assert.ErrorContains(t, err, "NOT_FOUND")

	out, err = execute(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "OPERATION")
}
