package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warydiaz/json-ingestion-platform/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, StoreSurrealDB, cfg.Store)
	assert.Equal(t, QueueMemory, cfg.Queue)
	assert.Equal(t, 10*time.Minute, cfg.ScheduleInterval)
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, 50*1024*1024, cfg.MaxBatchBytes)
	assert.Equal(t, 30*time.Second, cfg.InactivityTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 600, cfg.RateLimit)
	assert.Nil(t, cfg.CORSOrigins)
	assert.False(t, cfg.NATSEmbedded)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("INGEST_SERVER_PORT", "9090")
	t.Setenv("INGEST_STORE", "Memory")
	t.Setenv("INGEST_SCHEDULE_INTERVAL", "0")
	t.Setenv("INGEST_INACTIVITY_TIMEOUT", "5s")
	t.Setenv("INGEST_BATCH_SIZE", "not-a-number")
	t.Setenv("INGEST_LOG_LEVEL", "warning")
	t.Setenv("INGEST_CORS_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("INGEST_NATS_EMBEDDED", "true")
	t.Setenv("INGEST_RATE_LIMIT", "0")

	cfg := Load()
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Zero(t, cfg.ScheduleInterval)
	assert.Equal(t, 5*time.Second, cfg.InactivityTimeout)
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.True(t, cfg.NATSEmbedded)
	assert.Zero(t, cfg.RateLimit)
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("ingestion completed", "dataset_id", "hotels")

	assert.Contains(t, stderr.String(), "dataset_id=hotels")
	assert.Contains(t, file.String(), `"dataset_id":"hotels"`)
	assert.NotContains(t, stderr.String(), "hidden")
}

const datasetsYAML = `
datasets:
  - datasetId: hotels
    source: partner-a
    sourceType: http
    url: https://example.com/hotels.json
    description: Hotel list
    fieldMapping:
      city: address.city
  - datasetId: archive
    sourceType: s3
    bucket: data
    key: archive.json
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "datasets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDatasetProvider_ListAndGet(t *testing.T) {
	p := NewDatasetProvider(writeFile(t, datasetsYAML))

	datasets, err := p.List()
	require.NoError(t, err)
	require.Len(t, datasets, 2)
	assert.Equal(t, "hotels", datasets[0].DatasetID)
	assert.Equal(t, map[string]string{"city": "address.city"}, datasets[0].FieldMapping)
	assert.Equal(t, models.SourceTypeS3, datasets[1].SourceType)

	d, err := p.Get("archive")
	require.NoError(t, err)
	assert.Equal(t, "archive.json", d.Key)

	_, err = p.Get("missing")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestDatasetProvider_CachesUntilReload(t *testing.T) {
	path := writeFile(t, datasetsYAML)
	p := NewDatasetProvider(path)

	_, err := p.List()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"datasets":[{"datasetId":"only","sourceType":"http","url":"https://example.com/a.json"}]}`), 0o600))

	cached, err := p.List()
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	reloaded, err := p.Reload()
	require.NoError(t, err)
	require.Len(t, reloaded, 1)
	assert.Equal(t, "only", reloaded[0].DatasetID)
}

func TestDatasetProvider_FailedReloadKeepsCache(t *testing.T) {
	path := writeFile(t, datasetsYAML)
	p := NewDatasetProvider(path)
	_, err := p.List()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("datasets: ["), 0o600))
	_, err = p.Reload()
	assert.ErrorIs(t, err, ErrDatasetConfig)

	datasets, err := p.List()
	require.NoError(t, err)
	assert.Len(t, datasets, 2)
}

func TestParseDatasets_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", ""},
		{"no datasets key", "other: 1"},
		{"unknown field", "datasets:\n  - datasetId: a\n    sourceType: http\n    url: https://x.io\n    colour: red"},
		{"http without url", "datasets:\n  - datasetId: a\n    sourceType: http"},
		{"bad source type", "datasets:\n  - datasetId: a\n    sourceType: ftp"},
		{"duplicate ids", "datasets:\n  - {datasetId: a, sourceType: s3}\n  - {datasetId: a, sourceType: s3}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDatasets([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestDatasetProvider_MissingFile(t *testing.T) {
	p := NewDatasetProvider(filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := p.List()
	assert.ErrorIs(t, err, ErrDatasetConfig)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
