// Package models defines data structures shared by the ingestion and read paths.
package models

import "time"

// IngestedRecord is one element of an ingested dataset.
// The ID is assigned by the store on insert; records are never updated in place.
type IngestedRecord struct {
	ID            string         `json:"id"`
	Source        string         `json:"source"`
	DatasetID     string         `json:"datasetId"`
	Payload       map[string]any `json:"payload"`
	IngestionDate time.Time      `json:"ingestionDate"`
}
