// Package store defines the persistence port shared by ingestion and reads.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/warydiaz/json-ingestion-platform/internal/models"
	"github.com/warydiaz/json-ingestion-platform/internal/query"
)

// ErrStoreFailure wraps failures reported by a Store implementation.
var ErrStoreFailure = errors.New("store failure")

// Store persists ingested records.
//
// Every method is a single store operation with its own atomicity; callers
// get no cross-call transaction. Record IDs are assigned by the store and
// sort in insertion order.
type Store interface {
	// InsertMany inserts records without requiring ordered application: a
	// rejected record does not prevent the others from being written.
	// Empty input is a no-op.
	InsertMany(ctx context.Context, records []models.IngestedRecord) error

	// FindPage returns up to limit records matching filter, ascending by ID,
	// with ID strictly greater than afterID when afterID is non-empty.
	FindPage(ctx context.Context, filter query.CompiledFilter, limit int, afterID string) ([]models.IngestedRecord, error)

	// CountExact counts records matching filter.
	CountExact(ctx context.Context, filter query.CompiledFilter) (int64, error)

	// CountApproximate returns a fast, possibly stale, total record count.
	CountApproximate(ctx context.Context) (int64, error)

	// DeleteWhere removes every record of one dataset and returns how many were removed.
	DeleteWhere(ctx context.Context, source, datasetID string) (int64, error)
}

// BulkInsertError reports the records an unordered insert could not write.
// The remaining records of the batch were inserted.
type BulkInsertError struct {
	Inserted int
	Failed   int
	First    error
}

func (e *BulkInsertError) Error() string {
	return fmt.Sprintf("bulk insert: %d of %d records failed: %v", e.Failed, e.Inserted+e.Failed, e.First)
}

func (e *BulkInsertError) Unwrap() []error {
	return []error{ErrStoreFailure, e.First}
}
