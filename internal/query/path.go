package query

import (
	"regexp"
	"strings"
)

const operatorPrefix = "$"

var safeSegment = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateFieldPath checks a dot-separated attribute path before it is used to
// address payload fields. Every path derived from request input must pass
// through here before reaching a store.
func ValidateFieldPath(path string) error {
	if path == "" {
		return ErrEmptyFieldPath
	}

	for _, segment := range strings.Split(path, ".") {
		if strings.HasPrefix(segment, operatorPrefix) {
			return &InvalidFieldPathError{Segment: segment, Reason: ReasonOperator}
		}
		if !safeSegment.MatchString(segment) {
			return &InvalidFieldPathError{Segment: segment, Reason: ReasonInvalidChars}
		}
	}
	return nil
}

// Segments splits a validated path into its parts.
func Segments(path string) []string {
	return strings.Split(path, ".")
}
