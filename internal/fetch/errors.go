package fetch

import (
	"errors"
	"fmt"
)

// Sentinel errors for dataset fetching.
// Both are transient from the job's point of view: the caller's queue retries the job.
var (
	// ErrFetchFailed wraps every terminal fetch error: transport, status, parse or cancellation.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrFetchTimeout indicates that the connection or the body stalled past its timeout.
	ErrFetchTimeout = errors.New("fetch timeout")

	// ErrStreamClosed is returned by Next after Close.
	ErrStreamClosed = errors.New("stream closed")
)

// FetchError describes a failed fetch of a dataset URL.
type FetchError struct {
	URL        string
	StatusCode int // non-zero when the server answered with an error status
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetchFailed}
	}
	return []error{ErrFetchFailed, e.Err}
}
