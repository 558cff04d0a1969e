package query

import (
	"math"
	"strconv"
	"strings"
)

// Coerce converts a raw parameter value into a typed scalar.
//
// Booleans and numbers pass through (numbers are normalised to float64).
// Strings are trimmed and tried, in order, as "true"/"false", "null" and a
// finite decimal number; anything else is returned as the trimmed string.
// A zero result is a real value: callers must not treat it as "not supplied".
func Coerce(raw any) any {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		switch s {
		case "true":
			return true
		case "false":
			return false
		case "null":
			return nil
		}
		if n, ok := ParseNumber(s); ok {
			return n
		}
		return s
	case bool:
		return v
	default:
		if n, ok := toFloat(raw); ok {
			return n
		}
		return nil
	}
}

// ParseNumber parses a finite decimal number. Empty strings, hex literals,
// infinities and NaN are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "xX_") {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

// numericValue is the numeric-only parse used for range bounds.
func numericValue(raw any) (float64, bool) {
	if s, ok := raw.(string); ok {
		return ParseNumber(s)
	}
	return toFloat(raw)
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}
