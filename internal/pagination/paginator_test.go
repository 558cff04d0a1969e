package pagination

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warydiaz/json-ingestion-platform/internal/models"
	"github.com/warydiaz/json-ingestion-platform/internal/query"
	"github.com/warydiaz/json-ingestion-platform/internal/store/memory"
)

func seededStore(t *testing.T, n int) *memory.Store {
	t.Helper()
	s := memory.New()
	records := make([]models.IngestedRecord, n)
	for i := range records {
		records[i] = models.IngestedRecord{
			Source:    "s1",
			DatasetID: "d1",
			Payload:   map[string]any{"n": float64(i), "name": fmt.Sprintf("item-%d", i)},
		}
	}
	require.NoError(t, s.InsertMany(context.Background(), records))
	return s
}

func TestPage_WalksAllRecordsOnce(t *testing.T) {
	p := New(seededStore(t, 3), nil, nil)
	ctx := context.Background()

	first, err := p.Page(ctx, Request{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Data, 2)
	require.NotNil(t, first.Pagination.NextCursor)
	assert.True(t, first.Pagination.HasMore)
	assert.Equal(t, 2, first.Pagination.Limit)
	assert.Equal(t, int64(3), first.Pagination.Total)

	second, err := p.Page(ctx, Request{Limit: 2, Cursor: *first.Pagination.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Data, 1)
	assert.Nil(t, second.Pagination.NextCursor)
	assert.False(t, second.Pagination.HasMore)

	var ids []string
	for _, r := range append(first.Data, second.Data...) {
		ids = append(ids, r.ID)
	}
	assert.Len(t, ids, 3)
	assert.IsIncreasing(t, ids)
}

func TestPage_NewWritesAppearOnLaterPages(t *testing.T) {
	s := seededStore(t, 4)
	p := New(s, nil, nil)
	ctx := context.Background()

	first, err := p.Page(ctx, Request{Limit: 2})
	require.NoError(t, err)

	require.NoError(t, s.InsertMany(ctx, []models.IngestedRecord{{
		Source: "s1", DatasetID: "d1", Payload: map[string]any{"n": float64(99)},
	}}))

	seen := map[string]bool{}
	for _, r := range first.Data {
		seen[r.ID] = true
	}
	cursor := first.Pagination.NextCursor
	for cursor != nil {
		page, err := p.Page(ctx, Request{Limit: 2, Cursor: *cursor})
		require.NoError(t, err)
		for _, r := range page.Data {
			assert.False(t, seen[r.ID], "id %s returned twice", r.ID)
			seen[r.ID] = true
		}
		cursor = page.Pagination.NextCursor
	}
	assert.Len(t, seen, 5)
}

func TestQuery_FilteredUsesExactCount(t *testing.T) {
	p := New(seededStore(t, 12), nil, nil)

	page, err := p.Query(context.Background(), query.Params{"name": "item-1", "limit": "5"})
	require.NoError(t, err)

	// item-1, item-10, item-11
	assert.Equal(t, int64(3), page.Pagination.Total)
	assert.Len(t, page.Data, 3)
	assert.False(t, page.Pagination.HasMore)
	assert.Equal(t, 5, page.Pagination.Limit)
}

func TestQuery_DefaultsAndEmptyResult(t *testing.T) {
	p := New(memory.New(), nil, nil)

	page, err := p.Query(context.Background(), query.Params{})
	require.NoError(t, err)
	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)
	assert.Equal(t, DefaultLimit, page.Pagination.Limit)
	assert.Zero(t, page.Pagination.Total)
}

func TestQuery_ClientErrors(t *testing.T) {
	p := New(memory.New(), nil, nil)
	ctx := context.Background()

	_, err := p.Query(ctx, query.Params{"limit": "0"})
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = p.Query(ctx, query.Params{"cursor": "not-a-cursor"})
	assert.ErrorIs(t, err, ErrInvalidCursor)

	_, err = p.Query(ctx, query.Params{"$where": "1"})
	assert.ErrorIs(t, err, query.ErrInvalidFieldPath)
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw     any
		want    int
		wantErr bool
	}{
		{nil, DefaultLimit, false},
		{"", DefaultLimit, false},
		{"25", 25, false},
		{" 7 ", 7, false},
		{float64(100), 100, false},
		{1, 1, false},
		{"101", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
		{float64(2.5), 0, true},
		{true, 0, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.raw), func(t *testing.T) {
			got, err := ParseLimit(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLimit)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCursorRoundTrip(t *testing.T) {
	id := uuid.Must(uuid.NewV7()).String()

	got, err := DecodeCursor(EncodeCursor(id))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, bad := range []string{"%%%", "bm90LWpzb24", EncodeCursor("42")} {
		_, err := DecodeCursor(bad)
		assert.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}

type failingStore struct {
	*memory.Store
	err error
}

func (f failingStore) CountExact(context.Context, query.CompiledFilter) (int64, error) {
	return 0, f.err
}

func TestPage_PropagatesStoreErrors(t *testing.T) {
	boom := errors.New("boom")
	p := New(failingStore{Store: memory.New(), err: boom}, nil, nil)

	_, err := p.Query(context.Background(), query.Params{"source": "s1"})
	assert.ErrorIs(t, err, boom)
}
