package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warydiaz/json-ingestion-platform/internal/query"
)

func render(t *testing.T, params query.Params) *where {
	t.Helper()
	f, err := query.Compile(params)
	require.NoError(t, err)
	w, err := renderFilter(f)
	require.NoError(t, err)
	return w
}

func TestRenderFilter_Empty(t *testing.T) {
	w := render(t, query.Params{})
	assert.Equal(t, "", w.String())
	assert.Empty(t, w.vars)
}

func TestRenderFilter_Identity(t *testing.T) {
	w := render(t, query.Params{"source": "s1", "datasetId": "d1"})
	assert.Equal(t, "WHERE datasetId = $i0 AND source = $i1", w.String())
	assert.Equal(t, map[string]any{"i0": "d1", "i1": "s1"}, w.vars)
}

func TestRenderFilter_PredicateKinds(t *testing.T) {
	tests := []struct {
		name   string
		params query.Params
		cond   string
		vars   map[string]any
	}{
		{
			name:   "exact number",
			params: query.Params{"stars": "4"},
			cond:   "WHERE payload.`stars` = $a0",
			vars:   map[string]any{"a0": float64(4)},
		},
		{
			name:   "exact boolean",
			params: query.Params{"open": "false"},
			cond:   "WHERE payload.`open` = $a0",
			vars:   map[string]any{"a0": false},
		},
		{
			name:   "exact null",
			params: query.Params{"closed_at": "null"},
			cond:   "WHERE (payload.`closed_at` = NONE OR payload.`closed_at` = NULL)",
			vars:   map[string]any{},
		},
		{
			name:   "partial text on nested path",
			params: query.Params{"address.city": "LyOn"},
			cond:   "WHERE (type::is::string(payload.`address`.`city`) AND string::contains(string::lowercase(payload.`address`.`city`), $a0))",
			vars:   map[string]any{"a0": "lyon"},
		},
		{
			name:   "range",
			params: query.Params{"price_min": "100", "price_lt": "500"},
			cond:   "WHERE (type::is::number(payload.`price`) AND payload.`price` >= $a0_gte AND payload.`price` < $a0_lt)",
			vars:   map[string]any{"a0_gte": float64(100), "a0_lt": float64(500)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := render(t, tt.params)
			assert.Equal(t, tt.cond, w.String())
			assert.Equal(t, tt.vars, w.vars)
		})
	}
}

func TestRenderFilter_ValuesNeverReachStatementText(t *testing.T) {
	w := render(t, query.Params{
		"name":   "x' OR 1=1; DELETE ingested_record; --",
		"source": "s1\"; REMOVE TABLE ingested_record",
	})
	assert.NotContains(t, w.String(), "DELETE")
	assert.NotContains(t, w.String(), "REMOVE")
	assert.Len(t, w.vars, 2)
}

func TestRenderFilter_RejectsUnsafePaths(t *testing.T) {
	// A hand-built filter bypassing Compile is still validated.
	f := query.CompiledFilter{Attributes: map[string]query.Predicate{
		"a`; DELETE ingested_record": {Kind: query.Exact, Value: float64(1)},
	}}
	_, err := renderFilter(f)
	assert.ErrorIs(t, err, query.ErrInvalidFieldPath)
}

func TestRenderFilter_IsDeterministic(t *testing.T) {
	params := query.Params{"a": "x", "b_min": "1", "c": "true", "source": "s", "datasetId": "d"}
	first := render(t, params)
	for range 20 {
		again := render(t, params)
		assert.Equal(t, first.String(), again.String())
		assert.Equal(t, first.vars, again.vars)
	}
}

func TestRenderFilter_CustomIdentityFieldsLiveInPayload(t *testing.T) {
	f, err := query.NewCompiler([]string{"tenant"}).Compile(query.Params{"tenant": "acme"})
	require.NoError(t, err)

	w, err := renderFilter(f)
	require.NoError(t, err)
	assert.Equal(t, "WHERE payload.`tenant` = $i0", w.String())
}
