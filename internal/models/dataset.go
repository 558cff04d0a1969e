package models

// SourceType identifies how a dataset is fetched.
type SourceType string

const (
	SourceTypeHTTP SourceType = "http"

	// Accepted in configuration and jobs but not ingested yet.
	SourceTypeS3   SourceType = "s3"
	SourceTypeFile SourceType = "file"
)

// DatasetDescriptor describes one configured dataset.
type DatasetDescriptor struct {
	DatasetID    string            `json:"datasetId" yaml:"datasetId" validate:"required"`
	Source       string            `json:"source" yaml:"source"`
	SourceType   SourceType        `json:"sourceType" yaml:"sourceType" validate:"required,oneof=http s3 file"`
	URL          string            `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	Bucket       string            `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Key          string            `json:"key,omitempty" yaml:"key,omitempty"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	FieldMapping map[string]string `json:"fieldMapping,omitempty" yaml:"fieldMapping,omitempty"`
}

// Job builds the ingestion job for this dataset.
func (d DatasetDescriptor) Job() IngestJob {
	return IngestJob{
		DatasetID:    d.DatasetID,
		Source:       d.Source,
		SourceType:   d.SourceType,
		URL:          d.URL,
		Bucket:       d.Bucket,
		Key:          d.Key,
		FieldMapping: d.FieldMapping,
	}
}

// IngestJob is the unit of work consumed by the ingestion orchestrator.
// It travels over the job queue and the admin trigger endpoint.
type IngestJob struct {
	DatasetID    string            `json:"datasetId" validate:"required"`
	Source       string            `json:"source,omitempty"`
	SourceType   SourceType        `json:"sourceType" validate:"required,oneof=http s3 file"`
	URL          string            `json:"url,omitempty" validate:"omitempty,url"`
	Bucket       string            `json:"bucket,omitempty"`
	Key          string            `json:"key,omitempty"`
	FieldMapping map[string]string `json:"fieldMapping,omitempty"`
}

// SourceLabel is the source name records are stored under: the explicit
// source when present, otherwise the source type.
func (j IngestJob) SourceLabel() string {
	if j.Source != "" {
		return j.Source
	}
	return string(j.SourceType)
}
