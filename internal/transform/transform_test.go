package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		record  map[string]any
		mapping FieldMapping
		want    map[string]any
	}{
		{
			name:    "nested path",
			record:  map[string]any{"address": map[string]any{"city": "Lyon"}},
			mapping: FieldMapping{"city": "address.city"},
			want:    map[string]any{"city": "Lyon"},
		},
		{
			name:    "absent path is omitted",
			record:  map[string]any{"name": "x"},
			mapping: FieldMapping{"city": "address.city"},
			want:    map[string]any{},
		},
		{
			name:    "explicit null is kept",
			record:  map[string]any{"rating": nil},
			mapping: FieldMapping{"rating": "rating"},
			want:    map[string]any{"rating": nil},
		},
		{
			name:    "values are not coerced",
			record:  map[string]any{"isAvailable": true, "price": "120", "tags": []any{"a"}},
			mapping: FieldMapping{"available": "isAvailable", "price": "price", "tags": "tags"},
			want:    map[string]any{"available": true, "price": "120", "tags": []any{"a"}},
		},
		{
			name:    "descending through a scalar is absent",
			record:  map[string]any{"address": "12 rue X"},
			mapping: FieldMapping{"city": "address.city"},
			want:    map[string]any{},
		},
		{
			name:    "descending through null is absent",
			record:  map[string]any{"address": nil},
			mapping: FieldMapping{"city": "address.city"},
			want:    map[string]any{},
		},
		{
			name:    "nested object copied whole",
			record:  map[string]any{"geo": map[string]any{"lat": 1.5, "lng": 2.5}},
			mapping: FieldMapping{"location": "geo"},
			want:    map[string]any{"location": map[string]any{"lat": 1.5, "lng": 2.5}},
		},
		{
			name:    "empty mapping",
			record:  map[string]any{"a": 1},
			mapping: FieldMapping{},
			want:    map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Apply(tt.record, tt.mapping))
		})
	}
}

func TestApply_NilMappingPassesThrough(t *testing.T) {
	record := map[string]any{"a": 1, "b": map[string]any{"c": 2}}
	assert.Equal(t, record, Apply(record, nil))
}
