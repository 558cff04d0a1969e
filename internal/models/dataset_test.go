package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestJobSourceLabel(t *testing.T) {
	assert.Equal(t, "open-data", IngestJob{Source: "open-data", SourceType: SourceTypeHTTP}.SourceLabel())
	assert.Equal(t, "http", IngestJob{SourceType: SourceTypeHTTP}.SourceLabel())
}

func TestIngestJobValidate(t *testing.T) {
	tests := []struct {
		name    string
		job     IngestJob
		wantErr bool
	}{
		{"valid http", IngestJob{DatasetID: "d1", SourceType: SourceTypeHTTP, URL: "https://example.com/data.json"}, false},
		{"valid s3 without url", IngestJob{DatasetID: "d1", SourceType: SourceTypeS3, Bucket: "b", Key: "k"}, false},
		{"missing dataset id", IngestJob{SourceType: SourceTypeHTTP, URL: "https://example.com"}, true},
		{"unknown source type", IngestJob{DatasetID: "d1", SourceType: "ftp", URL: "https://example.com"}, true},
		{"http without url", IngestJob{DatasetID: "d1", SourceType: SourceTypeHTTP}, true},
		{"malformed url", IngestJob{DatasetID: "d1", SourceType: SourceTypeHTTP, URL: "not a url"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidJob)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatasetDescriptorJob(t *testing.T) {
	d := DatasetDescriptor{
		DatasetID:    "hotels",
		Source:       "partner-a",
		SourceType:   SourceTypeHTTP,
		URL:          "https://example.com/hotels.json",
		Description:  "hotel list",
		FieldMapping: map[string]string{"city": "address.city"},
	}

	job := d.Job()
	assert.Equal(t, "hotels", job.DatasetID)
	assert.Equal(t, "partner-a", job.Source)
	assert.Equal(t, d.FieldMapping, job.FieldMapping)
	assert.NoError(t, d.Validate())
}
