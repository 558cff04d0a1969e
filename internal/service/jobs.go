// Package service tracks ingestion runs on top of the ingest orchestrator.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warydiaz/json-ingestion-platform/internal/ingest"
	"github.com/warydiaz/json-ingestion-platform/internal/models"
)

// JobStatus represents the state of an ingestion run.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusSkipped   JobStatus = "skipped"
)

// Trigger names where a run came from.
const (
	TriggerQueue = "queue"
	TriggerAdmin = "admin"
	TriggerCLI   = "cli"
)

var (
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobInProgress is returned when the same dataset is already being
	// ingested. Two overlapping replaces would both delete and then both
	// insert, leaving the dataset duplicated.
	ErrJobInProgress = errors.New("dataset ingestion already in progress")
)

// Runner executes one ingestion job. *ingest.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, job models.IngestJob, onProgress func(ingest.Progress)) (ingest.Result, error)
}

// JobStore persists run history. *db.Client implements it.
type JobStore interface {
	SaveJobRun(ctx context.Context, id string, run models.JobRun) error
	ListJobRuns(ctx context.Context, limit int) ([]models.JobRun, error)
}

// Job is one tracked ingestion run.
type Job struct {
	ID          string
	DatasetID   string
	Source      string
	Trigger     string
	Status      JobStatus
	Records     int
	Batches     int
	Deleted     int64
	BytesRead   int64
	BytesTotal  int64
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time

	mu          sync.RWMutex
	lastPersist time.Time // for debouncing progress writes
}

// JobSnapshot is a point-in-time copy of a Job.
type JobSnapshot struct {
	ID          string     `json:"id"`
	DatasetID   string     `json:"datasetId"`
	Source      string     `json:"source"`
	Trigger     string     `json:"trigger"`
	Status      JobStatus  `json:"status"`
	Records     int        `json:"records"`
	Batches     int        `json:"batches"`
	Deleted     int64      `json:"deleted"`
	BytesRead   int64      `json:"bytesRead"`
	BytesTotal  int64      `json:"bytesTotal"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Done reports whether the run reached a final state.
func (s JobSnapshot) Done() bool {
	switch s.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusSkipped:
		return true
	}
	return false
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobSnapshot{
		ID:          j.ID,
		DatasetID:   j.DatasetID,
		Source:      j.Source,
		Trigger:     j.Trigger,
		Status:      j.Status,
		Records:     j.Records,
		Batches:     j.Batches,
		Deleted:     j.Deleted,
		BytesRead:   j.BytesRead,
		BytesTotal:  j.BytesTotal,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

func (s JobSnapshot) run() models.JobRun {
	run := models.JobRun{
		DatasetID:   s.DatasetID,
		Source:      s.Source,
		Trigger:     s.Trigger,
		Status:      string(s.Status),
		Records:     s.Records,
		Batches:     s.Batches,
		Deleted:     s.Deleted,
		BytesRead:   s.BytesRead,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
	}
	if s.Error != "" {
		msg := s.Error
		run.Error = &msg
	}
	return run
}

// JobManager tracks ingestion runs and their progress.
type JobManager struct {
	jobs    map[string]*Job
	active  map[datasetKey]string // dataset -> running job id
	mu      sync.RWMutex
	runner  Runner
	store   JobStore
	logger  *slog.Logger
	baseCtx context.Context
	wg      sync.WaitGroup

	persistEvery time.Duration
	maxJobs      int
}

type datasetKey struct {
	source    string
	datasetID string
}

func keyOf(job models.IngestJob) datasetKey {
	return datasetKey{source: job.SourceLabel(), datasetID: job.DatasetID}
}

// JobManagerOption configures a JobManager.
type JobManagerOption func(*JobManager)

// WithJobStore persists run history to s.
func WithJobStore(s JobStore) JobManagerOption {
	return func(m *JobManager) { m.store = s }
}

// WithBaseContext sets the context background runs inherit. Canceling it
// stops runs started with Start.
func WithBaseContext(ctx context.Context) JobManagerOption {
	return func(m *JobManager) { m.baseCtx = ctx }
}

// WithPersistInterval sets the minimum delay between progress writes.
func WithPersistInterval(d time.Duration) JobManagerOption {
	return func(m *JobManager) { m.persistEvery = d }
}

// NewJobManager creates a job manager around runner.
func NewJobManager(runner Runner, logger *slog.Logger, opts ...JobManagerOption) *JobManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &JobManager{
		jobs:         make(map[string]*Job),
		active:       make(map[datasetKey]string),
		runner:       runner,
		logger:       logger,
		baseCtx:      context.Background(),
		persistEvery: 5 * time.Second,
		maxJobs:      200,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateJob registers a new pending run for job. It fails with
// ErrJobInProgress while another run of the same dataset is unfinished; the
// dataset stays claimed until the run returns.
func (m *JobManager) CreateJob(ctx context.Context, job models.IngestJob, trigger string) (*Job, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}
	j := &Job{
		ID:         id.String(),
		DatasetID:  job.DatasetID,
		Source:     job.SourceLabel(),
		Trigger:    trigger,
		Status:     JobStatusPending,
		BytesTotal: -1,
		StartedAt:  time.Now().UTC(),
	}

	key := keyOf(job)
	m.mu.Lock()
	if running, ok := m.active[key]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s/%s (job %s)", ErrJobInProgress, key.source, key.datasetID, running)
	}
	m.active[key] = j.ID
	m.jobs[j.ID] = j
	m.evictLocked()
	m.mu.Unlock()

	m.persist(ctx, j)
	m.logger.Info("job created", "job_id", j.ID, "dataset_id", j.DatasetID, "trigger", trigger)
	return j, nil
}

// evictLocked drops the oldest finished runs beyond maxJobs.
func (m *JobManager) evictLocked() {
	if len(m.jobs) <= m.maxJobs {
		return
	}
	finished := make([]JobSnapshot, 0, len(m.jobs))
	for _, j := range m.jobs {
		if s := j.Snapshot(); s.Done() {
			finished = append(finished, s)
		}
	}
	slices.SortFunc(finished, func(a, b JobSnapshot) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	for _, s := range finished {
		if len(m.jobs) <= m.maxJobs {
			return
		}
		delete(m.jobs, s.ID)
	}
}

// Execute creates a run for job and executes it on the calling goroutine.
func (m *JobManager) Execute(ctx context.Context, job models.IngestJob, trigger string) (JobSnapshot, error) {
	j, err := m.CreateJob(ctx, job, trigger)
	if err != nil {
		return JobSnapshot{}, err
	}
	err = m.run(ctx, j, job)
	return j.Snapshot(), err
}

// Start creates a run for job and executes it in the background under the
// manager's base context.
func (m *JobManager) Start(ctx context.Context, job models.IngestJob, trigger string) (*Job, error) {
	j, err := m.CreateJob(ctx, job, trigger)
	if err != nil {
		return nil, err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("job goroutine panicked", "job_id", j.ID, "panic", r)
				m.fail(m.baseCtx, j, fmt.Errorf("internal panic: %v", r))
			}
		}()
		_ = m.run(m.baseCtx, j, job)
	}()
	return j, nil
}

// Wait blocks until every run started with Start has returned.
func (m *JobManager) Wait() {
	m.wg.Wait()
}

func (m *JobManager) run(ctx context.Context, j *Job, job models.IngestJob) error {
	defer m.release(job, j.ID)
	m.setRunning(ctx, j)

	result, err := m.runner.Run(ctx, job, func(p ingest.Progress) {
		m.updateProgress(ctx, j, p)
	})
	// Released before the final status is visible, so a caller that saw the
	// run finish can start the next one.
	m.release(job, j.ID)
	if err != nil {
		m.fail(ctx, j, err)
		return err
	}
	m.complete(ctx, j, result)
	return nil
}

func (m *JobManager) release(job models.IngestJob, id string) {
	key := keyOf(job)
	m.mu.Lock()
	if m.active[key] == id {
		delete(m.active, key)
	}
	m.mu.Unlock()
}

func (m *JobManager) setRunning(ctx context.Context, j *Job) {
	j.mu.Lock()
	j.Status = JobStatusRunning
	j.mu.Unlock()
	m.persist(ctx, j)
}

// updateProgress applies p with debounced persistence.
func (m *JobManager) updateProgress(ctx context.Context, j *Job, p ingest.Progress) {
	j.mu.Lock()
	j.Records = p.Records
	j.Batches = p.Batches
	j.BytesRead = p.BytesRead
	j.BytesTotal = p.BytesTotal
	shouldPersist := m.store != nil && time.Since(j.lastPersist) >= m.persistEvery
	j.mu.Unlock()

	if shouldPersist {
		m.persist(ctx, j)
	}
}

func (m *JobManager) complete(ctx context.Context, j *Job, result ingest.Result) {
	now := time.Now().UTC()
	j.mu.Lock()
	j.Status = JobStatusCompleted
	if result.Skipped {
		j.Status = JobStatusSkipped
	}
	j.Records = result.Records
	j.Batches = result.Batches
	j.Deleted = result.Deleted
	j.BytesRead = result.BytesRead
	j.CompletedAt = &now
	j.mu.Unlock()

	m.persist(ctx, j)
	m.logger.Info("job completed", "job_id", j.ID, "dataset_id", j.DatasetID, "records", result.Records, "skipped", result.Skipped)
}

func (m *JobManager) fail(ctx context.Context, j *Job, err error) {
	now := time.Now().UTC()
	j.mu.Lock()
	j.Status = JobStatusFailed
	j.Error = err.Error()
	j.CompletedAt = &now
	j.mu.Unlock()

	m.persist(ctx, j)
	m.logger.Error("job failed", "job_id", j.ID, "dataset_id", j.DatasetID, "error", err)
}

// persist writes the run to the job store. Failures are logged only: run
// history never decides the outcome of an ingestion.
func (m *JobManager) persist(ctx context.Context, j *Job) {
	if m.store == nil {
		return
	}
	j.mu.Lock()
	j.lastPersist = time.Now()
	j.mu.Unlock()

	s := j.Snapshot()
	if err := m.store.SaveJobRun(context.WithoutCancel(ctx), s.ID, s.run()); err != nil {
		m.logger.Warn("failed to persist job", "job_id", s.ID, "status", s.Status, "error", err)
	}
}

// GetJob returns the tracked run with id.
func (m *JobManager) GetJob(id string) (JobSnapshot, error) {
	m.mu.RLock()
	j, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return JobSnapshot{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j.Snapshot(), nil
}

// ListJobs returns all tracked runs, most recent first.
func (m *JobManager) ListJobs() []JobSnapshot {
	m.mu.RLock()
	jobs := make([]JobSnapshot, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j.Snapshot())
	}
	m.mu.RUnlock()

	slices.SortFunc(jobs, func(a, b JobSnapshot) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return jobs
}

// History returns persisted runs, most recent first. Without a job store it
// returns nil.
func (m *JobManager) History(ctx context.Context, limit int) ([]models.JobRun, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.ListJobRuns(ctx, limit)
}
