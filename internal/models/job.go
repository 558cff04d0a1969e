package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// JobRun is the persisted history entry of one ingestion run.
type JobRun struct {
	ID          surrealmodels.RecordID `json:"id"`
	DatasetID   string                 `json:"dataset_id"`
	Source      string                 `json:"source"`
	Trigger     string                 `json:"trigger"` // "queue", "admin" or "cli"
	Status      string                 `json:"status"`
	Records     int                    `json:"records"`
	Batches     int                    `json:"batches"`
	Deleted     int64                  `json:"deleted"`
	BytesRead   int64                  `json:"bytes_read"`
	Error       *string                `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// Content returns the stored fields of the run, leaving out unset optionals.
func (r JobRun) Content() map[string]any {
	content := map[string]any{
		"dataset_id": r.DatasetID,
		"source":     r.Source,
		"trigger":    r.Trigger,
		"status":     r.Status,
		"records":    r.Records,
		"batches":    r.Batches,
		"deleted":    r.Deleted,
		"bytes_read": r.BytesRead,
		"started_at": r.StartedAt,
	}
	if r.Error != nil {
		content["error"] = *r.Error
	}
	if r.CompletedAt != nil {
		content["completed_at"] = *r.CompletedAt
	}
	return content
}
