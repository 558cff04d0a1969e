package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"zero is a number", "0", float64(0)},
		{"true", "true", true},
		{"false", "false", false},
		{"null", "null", nil},
		{"alphanumeric stays string", "abc123", "abc123"},
		{"scientific notation", "1.5e-3", 0.0015},
		{"negative decimal", "-12.25", -12.25},
		{"trimmed", "  42 ", float64(42)},
		{"trimmed string", "  Lyon ", "Lyon"},
		{"empty stays string", "", ""},
		{"blank stays empty string", "   ", ""},
		{"hex stays string", "0x10", "0x10"},
		{"infinity stays string", "Infinity", "Infinity"},
		{"nan stays string", "NaN", "NaN"},
		{"uppercase TRUE stays string", "TRUE", "TRUE"},
		{"bool passes through", false, false},
		{"float passes through", 2.5, 2.5},
		{"int normalised", 30, float64(30)},
		{"int64 normalised", int64(-7), float64(-7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Coerce(tt.in))
		})
	}
}

func TestParseNumber(t *testing.T) {
	n, ok := ParseNumber("100")
	assert.True(t, ok)
	assert.Equal(t, float64(100), n)

	n, ok = ParseNumber("1e3")
	assert.True(t, ok)
	assert.Equal(t, float64(1000), n)

	for _, s := range []string{"", "abc", "1_000", "0x1p-2", "inf", "-Infinity", "12abc"} {
		_, ok := ParseNumber(s)
		assert.False(t, ok, "%q should not parse", s)
	}
}
