// Package query compiles untrusted request parameters into typed record filters.
package query

import (
	"errors"
	"fmt"
)

// Sentinel errors for filter compilation.
// Both are client input errors: the request must be corrected before retrying.
var (
	// ErrInvalidFieldPath indicates an attribute path segment that could reach
	// the store as an operator or an unsafe identifier.
	ErrInvalidFieldPath = errors.New("invalid field path")

	// ErrEmptyFieldPath indicates an attribute path with no segments.
	ErrEmptyFieldPath = errors.New("field path cannot be empty")
)

// Rejection reasons reported by InvalidFieldPathError.
const (
	ReasonOperator     = "operators not allowed"
	ReasonInvalidChars = "only alphanumeric and underscore allowed"
)

// InvalidFieldPathError names the offending segment of a rejected path.
type InvalidFieldPathError struct {
	Segment string
	Reason  string
}

func (e *InvalidFieldPathError) Error() string {
	return fmt.Sprintf("invalid field path %q: %s", e.Segment, e.Reason)
}

func (e *InvalidFieldPathError) Unwrap() error {
	return ErrInvalidFieldPath
}
