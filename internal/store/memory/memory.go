// Package memory provides an in-process Store used for local runs and tests.
package memory

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/warydiaz/json-ingestion-platform/internal/models"
	"github.com/warydiaz/json-ingestion-platform/internal/query"
	"github.com/warydiaz/json-ingestion-platform/internal/store"
)

// errMissingPayload rejects a record that has no payload object.
var errMissingPayload = errors.New("record has no payload")

// Store keeps records in a slice sorted by ID.
// IDs are UUIDv7 strings, which sort in creation order.
type Store struct {
	mu      sync.RWMutex
	records []models.IngestedRecord
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// InsertMany assigns IDs and appends the records. Records without a payload
// are rejected individually; the rest of the batch is still inserted.
func (s *Store) InsertMany(ctx context.Context, records []models.IngestedRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var bulkErr *store.BulkInsertError
	for _, rec := range records {
		if rec.Payload == nil {
			if bulkErr == nil {
				bulkErr = &store.BulkInsertError{First: errMissingPayload}
			}
			bulkErr.Failed++
			continue
		}
		id, err := uuid.NewV7()
		if err != nil {
			return errors.Join(store.ErrStoreFailure, err)
		}
		rec.ID = id.String()
		rec.Payload = maps.Clone(rec.Payload)
		s.records = append(s.records, rec)
	}

	if bulkErr != nil {
		bulkErr.Inserted = len(records) - bulkErr.Failed
		return bulkErr
	}
	return nil
}

// FindPage scans records in ID order.
func (s *Store) FindPage(ctx context.Context, filter query.CompiledFilter, limit int, afterID string) ([]models.IngestedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if afterID != "" {
		start = sort.Search(len(s.records), func(i int) bool {
			return s.records[i].ID > afterID
		})
	}

	m := newMatcher(filter)
	out := make([]models.IngestedRecord, 0, min(limit, 64))
	for i := start; i < len(s.records) && len(out) < limit; i++ {
		if m.match(&s.records[i]) {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

func (s *Store) CountExact(ctx context.Context, filter query.CompiledFilter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m := newMatcher(filter)
	var n int64
	for i := range s.records {
		if m.match(&s.records[i]) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountApproximate(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

func (s *Store) DeleteWhere(ctx context.Context, source, datasetID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var deleted int64
	for _, rec := range s.records {
		if rec.Source == source && rec.DatasetID == datasetID {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	clear(s.records[len(kept):])
	s.records = kept
	return deleted, nil
}

// Wipe removes every record.
func (s *Store) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}
