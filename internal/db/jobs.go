package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/warydiaz/json-ingestion-platform/internal/models"
)

// SaveJobRun creates or replaces the history entry of one ingestion run.
func (c *Client) SaveJobRun(ctx context.Context, id string, run models.JobRun) error {
	err := c.exec(ctx, `
		UPSERT type::record("ingest_job", $id) CONTENT $content RETURN NONE
	`, map[string]any{
		"id":      id,
		"content": run.Content(),
	})
	if err != nil {
		return fmt.Errorf("save job run: %w", err)
	}
	return nil
}

// GetJobRun returns one run by id, or ErrNotFound.
func (c *Client) GetJobRun(ctx context.Context, id string) (*models.JobRun, error) {
	results, err := surrealdb.Query[[]models.JobRun](ctx, c.db, `
		SELECT * FROM type::record("ingest_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job run: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return &(*results)[0].Result[0], nil
}

// ListJobRuns returns the most recent runs first.
func (c *Client) ListJobRuns(ctx context.Context, limit int) ([]models.JobRun, error) {
	results, err := surrealdb.Query[[]models.JobRun](ctx, c.db, `
		SELECT * FROM ingest_job ORDER BY started_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list job runs: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.JobRun{}, nil
	}
	return (*results)[0].Result, nil
}
