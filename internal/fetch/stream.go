package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// errNotArray reports a body whose top-level value is not a JSON array.
var errNotArray = errors.New("expected a top-level JSON array")

// Batch is a bounded group of records moved together from fetch to store.
type Batch []map[string]any

// Stats describes the progress of a stream.
type Stats struct {
	BytesRead     int64
	ContentLength int64 // -1 when the server did not announce a length
	Records       int
	Skipped       int
	Batches       int
}

// Stream is a finite, non-restartable sequence of batches.
// It is not safe for concurrent use.
type Stream struct {
	ctx       context.Context
	url       string
	batchSize int
	maxBytes  int
	fetcher   *Fetcher
	logger    *slog.Logger

	reqCtx context.Context
	cancel context.CancelCauseFunc
	body   io.ReadCloser
	idle   *time.Timer
	dec    *json.Decoder

	started bool
	done    bool
	closed  bool
	err     error
	stats   Stats
}

// Next returns the next batch. It returns io.EOF once the array is exhausted.
// Any other error is terminal and returned again by every later call.
func (s *Stream) Next() (Batch, error) {
	switch {
	case s.err != nil:
		return nil, s.err
	case s.done:
		return nil, io.EOF
	case s.closed:
		return nil, ErrStreamClosed
	}

	if !s.started {
		s.started = true
		if err := s.open(); err != nil {
			return nil, s.fail(err)
		}
	} else {
		// Paused while the caller handled the previous batch.
		s.idle.Reset(s.fetcher.cfg.InactivityTimeout)
	}

	batch := make(Batch, 0, min(s.batchSize, 1024))
	batchBytes := 0

	for s.dec.More() {
		var raw json.RawMessage
		if err := s.dec.Decode(&raw); err != nil {
			return nil, s.fail(s.classify(fmt.Errorf("decode array element: %w", err)))
		}

		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, s.fail(s.classify(fmt.Errorf("decode array element: %w", err)))
		}
		obj, ok := value.(map[string]any)
		if !ok {
			s.stats.Skipped++
			s.logger.Warn("skipping non-object array element", "url", s.url, "type", jsonKind(value))
			continue
		}

		batch = append(batch, obj)
		batchBytes += len(raw)
		s.stats.Records++

		if len(batch) >= s.batchSize || batchBytes >= s.maxBytes {
			s.idle.Stop()
			s.stats.Batches++
			s.logger.Debug("yielding batch", "url", s.url, "records", len(batch), "bytes", batchBytes)
			return batch, nil
		}
	}

	// More reports false both at the closing bracket and on a read error;
	// consuming the closing token tells the two apart.
	if _, err := s.dec.Token(); err != nil {
		return nil, s.fail(s.classify(fmt.Errorf("read array end: %w", err)))
	}

	s.done = true
	s.release()
	s.logger.Info("finished streaming dataset",
		"url", s.url,
		"records", s.stats.Records,
		"skipped", s.stats.Skipped,
		"bytes", s.stats.BytesRead,
	)

	if len(batch) > 0 {
		s.stats.Batches++
		s.logger.Debug("yielding final batch", "url", s.url, "records", len(batch), "bytes", batchBytes)
		return batch, nil
	}
	return nil, io.EOF
}

// Stats returns the transfer counters so far.
func (s *Stream) Stats() Stats {
	return s.stats
}

// Close releases the connection, timers and parser state. It is safe to call
// more than once and at any point, including before the first Next.
func (s *Stream) Close() error {
	s.closed = true
	s.release()
	return nil
}

func (s *Stream) open() error {
	s.stats.ContentLength = -1
	s.reqCtx, s.cancel = context.WithCancelCause(s.ctx)

	req, err := http.NewRequestWithContext(s.reqCtx, http.MethodGet, s.url, nil)
	if err != nil {
		return &FetchError{URL: s.url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	connectTimeout := s.fetcher.cfg.ConnectTimeout
	connectTimer := time.AfterFunc(connectTimeout, func() {
		s.cancel(fmt.Errorf("%w: no response within %s", ErrFetchTimeout, connectTimeout))
	})

	resp, err := s.fetcher.client.Do(req)
	stopped := connectTimer.Stop()
	if err != nil {
		return s.classify(err)
	}
	s.body = resp.Body
	if !stopped {
		return s.classify(context.Cause(s.reqCtx))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{URL: s.url, StatusCode: resp.StatusCode}
	}
	s.stats.ContentLength = resp.ContentLength

	inactivity := s.fetcher.cfg.InactivityTimeout
	s.idle = time.AfterFunc(inactivity, func() {
		s.logger.Error("stream inactivity timeout", "url", s.url, "timeout", inactivity)
		s.cancel(fmt.Errorf("%w: no data received for %s", ErrFetchTimeout, inactivity))
	})

	s.dec = json.NewDecoder(&idleReader{
		r:       resp.Body,
		timer:   s.idle,
		timeout: inactivity,
		n:       &s.stats.BytesRead,
	})

	tok, err := s.dec.Token()
	if err != nil {
		return s.classify(fmt.Errorf("read array start: %w", err))
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return &FetchError{URL: s.url, Err: errNotArray}
	}
	return nil
}

// classify attaches the cancellation cause, if any, so that timeouts and
// caller cancellation surface as such instead of as a generic read error.
// Network timeouts raised below the stream, such as a dial timeout, are
// reported as ErrFetchTimeout too.
func (s *Stream) classify(err error) error {
	if s.reqCtx != nil {
		if cause := context.Cause(s.reqCtx); cause != nil {
			return &FetchError{URL: s.url, Err: cause}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		err = fmt.Errorf("%w: %w", ErrFetchTimeout, err)
	}
	return &FetchError{URL: s.url, Err: err}
}

func (s *Stream) fail(err error) error {
	s.err = err
	s.release()
	s.logger.Error("dataset stream failed", "url", s.url, "records", s.stats.Records, "error", err)
	return err
}

func (s *Stream) release() {
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
	if s.body != nil {
		_ = s.body.Close()
		s.body = nil
	}
	if s.cancel != nil {
		s.cancel(ErrStreamClosed)
	}
	s.dec = nil
}

// idleReader resets the inactivity timer whenever the body yields data.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
	n       *int64
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
		*r.n += int64(n)
	}
	return n, err
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
