// Package metrics provides in-memory runtime statistics collection and
// mirrors every observation to Prometheus.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Errors    int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Record volume (only for operations that move records)
	TotalRecords int64
	MaxRecords   int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Errors      int64   `json:"errors"`
	TotalTimeMs int64   `json:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
	MinTimeMs   int64   `json:"minTimeMs"`
	MaxTimeMs   int64   `json:"maxTimeMs"`

	// Record stats (nil if not applicable)
	TotalRecords *int64   `json:"totalRecords,omitempty"`
	AvgRecords   *float64 `json:"avgRecords,omitempty"`
	MaxRecords   *int64   `json:"maxRecords,omitempty"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptimeSeconds"`
	IngestRun     *OperationSnapshot `json:"ingestRun,omitempty"`
	InsertBatch   *OperationSnapshot `json:"insertBatch,omitempty"`
	DeleteDataset *OperationSnapshot `json:"deleteDataset,omitempty"`
	ReadPage      *OperationSnapshot `json:"readPage,omitempty"`
}

// Operation names for the collector.
const (
	OpIngestRun     = "ingest_run"
	OpInsertBatch   = "insert_batch"
	OpDeleteDataset = "delete_dataset"
	OpReadPage      = "read_page"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe, and a nil *Collector discards everything.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

func (m *OperationMetrics) observe(duration time.Duration, err error) {
	m.Count++
	m.TotalTime += duration
	if err != nil {
		m.Errors++
	}
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordTiming records timing and outcome for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	export(op, duration, 0, err)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(op).observe(duration, err)
}

// RecordRecords records timing, outcome and record volume for an operation.
func (c *Collector) RecordRecords(op string, duration time.Duration, records int64, err error) {
	if c == nil {
		return
	}
	export(op, duration, records, err)

	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.observe(duration, err)
	m.TotalRecords += records
	if records > m.MaxRecords {
		m.MaxRecords = records
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeRecords bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		Errors:      m.Errors,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeRecords {
		total := m.TotalRecords
		avg := float64(m.TotalRecords) / float64(m.Count)
		maxRecords := m.MaxRecords
		snap.TotalRecords = &total
		snap.AvgRecords = &avg
		snap.MaxRecords = &maxRecords
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		IngestRun:     snapshotOp(c.ops[OpIngestRun], true),
		InsertBatch:   snapshotOp(c.ops[OpInsertBatch], true),
		DeleteDataset: snapshotOp(c.ops[OpDeleteDataset], true),
		ReadPage:      snapshotOp(c.ops[OpReadPage], true),
	}
}
