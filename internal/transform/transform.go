// Package transform maps raw source records onto normalized attribute names.
package transform

import "strings"

// FieldMapping maps a normalized attribute name to a dotted source path.
type FieldMapping map[string]string

// Apply builds the normalized payload for one record.
//
// A nil mapping returns the record unchanged. Otherwise each mapping entry is
// resolved against the record; paths that are missing at any level are left
// out of the result, while present values (including explicit nulls) are
// copied as-is.
func Apply(record map[string]any, mapping FieldMapping) map[string]any {
	if mapping == nil {
		return record
	}

	out := make(map[string]any, len(mapping))
	for name, path := range mapping {
		if v, ok := Lookup(record, path); ok {
			out[name] = v
		}
	}
	return out
}

// Lookup resolves a dotted path by descending through nested objects.
func Lookup(record map[string]any, path string) (any, bool) {
	var current any = record
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
