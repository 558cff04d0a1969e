// Package client provides a REST client for the ingestion API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/warydiaz/json-ingestion-platform/internal/metrics"
	"github.com/warydiaz/json-ingestion-platform/internal/models"
	"github.com/warydiaz/json-ingestion-platform/internal/pagination"
	"github.com/warydiaz/json-ingestion-platform/internal/service"
)

const apiKeyHeader = "x-api-key"

// APIError is an error response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server error: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to the ingestion API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client for baseURL. An empty baseURL falls back to the
// INGEST_URL env var, then to localhost:8080. An empty apiKey falls back to
// INGEST_API_KEY. Timeout can be configured via INGEST_CLIENT_TIMEOUT
// (default 30s).
func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("INGEST_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if apiKey == "" {
		apiKey = os.Getenv("INGEST_API_KEY")
	}

	timeout := 30 * time.Second
	if t := os.Getenv("INGEST_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// do sends a request and decodes a 2xx JSON body into result.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, result any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, body)
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error.Message == "" {
		return &APIError{Status: status, Message: strings.TrimSpace(string(bytes.ToValidUTF8(body, nil)))}
	}
	return &APIError{Status: status, Code: payload.Error.Code, Message: payload.Error.Message}
}

// =============================================================================
// RECORDS
// =============================================================================

// RecordsOptions selects a page of records.
type RecordsOptions struct {
	Filters map[string]string
	Limit   int
	Cursor  string
}

// Records fetches one page of records.
func (c *Client) Records(ctx context.Context, opts RecordsOptions) (*pagination.Page, error) {
	q := url.Values{}
	for k, v := range opts.Filters {
		q.Set(k, v)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}

	var page pagination.Page
	if err := c.do(ctx, http.MethodGet, "/records", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// AllRecords follows cursors from opts until the last page, calling fn for
// each page. Returning an error from fn stops the walk.
func (c *Client) AllRecords(ctx context.Context, opts RecordsOptions, fn func(*pagination.Page) error) error {
	for {
		page, err := c.Records(ctx, opts)
		if err != nil {
			return err
		}
		if err := fn(page); err != nil {
			return err
		}
		if !page.Pagination.HasMore || page.Pagination.NextCursor == nil {
			return nil
		}
		opts.Cursor = *page.Pagination.NextCursor
	}
}

// =============================================================================
// DATASETS
// =============================================================================

type datasetsResponse struct {
	Datasets []models.DatasetDescriptor `json:"datasets"`
}

// ListDatasets returns the configured datasets.
func (c *Client) ListDatasets(ctx context.Context) ([]models.DatasetDescriptor, error) {
	var resp datasetsResponse
	if err := c.do(ctx, http.MethodGet, "/admin/datasets", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Datasets, nil
}

// ReloadDatasets makes the server re-read its datasets file.
func (c *Client) ReloadDatasets(ctx context.Context) ([]models.DatasetDescriptor, error) {
	var resp datasetsResponse
	if err := c.do(ctx, http.MethodPost, "/admin/datasets/reload", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Datasets, nil
}

// TriggerResult is the response of a trigger-ingestion call.
type TriggerResult struct {
	Message   string `json:"message"`
	Published int    `json:"published"`
}

// TriggerIngestion queues a job for every configured dataset.
func (c *Client) TriggerIngestion(ctx context.Context) (*TriggerResult, error) {
	var resp TriggerResult
	if err := c.do(ctx, http.MethodPost, "/admin/trigger-ingestion", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IngestDataset starts a tracked ingestion of one dataset and returns
// immediately.
func (c *Client) IngestDataset(ctx context.Context, datasetID string) (*service.JobSnapshot, error) {
	var job service.JobSnapshot
	if err := c.do(ctx, http.MethodPost, "/admin/datasets/"+url.PathEscape(datasetID)+"/ingest", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// =============================================================================
// JOBS
// =============================================================================

// ListJobs returns the runs tracked by the server, most recent first.
func (c *Client) ListJobs(ctx context.Context) ([]service.JobSnapshot, error) {
	var resp struct {
		Jobs []service.JobSnapshot `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// GetJob retrieves a tracked run by id.
func (c *Client) GetJob(ctx context.Context, id string) (*service.JobSnapshot, error) {
	var job service.JobSnapshot
	if err := c.do(ctx, http.MethodGet, "/admin/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// JobHistory returns persisted runs, most recent first.
func (c *Client) JobHistory(ctx context.Context, limit int) ([]models.JobRun, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Runs []models.JobRun `json:"runs"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/jobs/history", q, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// Stats returns the server's operation metrics.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/admin/stats", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// WatchJob streams snapshots of job id until it finishes. onUpdate is called
// for every snapshot; returning an error from it stops the watch. The final
// snapshot is returned.
func (c *Client) WatchJob(ctx context.Context, id string, onUpdate func(service.JobSnapshot) error) (*service.JobSnapshot, error) {
	wsURL := c.baseURL
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	u, err := url.Parse(wsURL + "/admin/jobs/" + url.PathEscape(id) + "/watch")
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	header := http.Header{}
	if c.apiKey != "" {
		header.Set(apiKeyHeader, c.apiKey)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return nil, decodeError(resp.StatusCode, body)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when ctx is canceled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	var last *service.JobSnapshot
	for {
		var snap service.JobSnapshot
		if err := conn.ReadJSON(&snap); err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && last != nil && last.Done() {
				return last, nil
			}
			return last, fmt.Errorf("read job update: %w", err)
		}
		last = &snap
		if err := onUpdate(snap); err != nil {
			return last, err
		}
	}
}
