// Package fetch streams a remote JSON array into bounded batches of records.
//
// The response body is never held in memory as a whole: array elements are
// decoded one by one as bytes arrive, and a batch is handed to the caller as
// soon as it reaches its record count or byte budget. Two timeouts guard the
// transfer:
//
//   - ConnectTimeout bounds dialing, TLS and the wait for response headers.
//   - InactivityTimeout bounds the gap between two received chunks of body;
//     it is reset by every read that returns data and paused while the
//     caller holds a batch, so a slow store write never times out the body.
package fetch

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Defaults applied to zero Config values.
const (
	DefaultConnectTimeout    = 30 * time.Second
	DefaultInactivityTimeout = 30 * time.Second
	DefaultMaxBatchCount     = 1000
	DefaultMaxBatchBytes     = 50 * 1024 * 1024
)

// Config configures a Fetcher.
type Config struct {
	// ConnectTimeout bounds the initial request up to the response headers.
	ConnectTimeout time.Duration

	// InactivityTimeout cancels the transfer when no body bytes arrive for this long.
	InactivityTimeout time.Duration

	// MaxBatchCount flushes a batch once it holds this many records.
	MaxBatchCount int

	// MaxBatchBytes flushes a batch once its records' raw JSON size reaches this many bytes.
	MaxBatchBytes int

	// Transport is an optional custom RoundTripper. When nil, a default
	// *http.Transport is built with ConnectTimeout applied to dialing.
	Transport http.RoundTripper
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
	if c.MaxBatchCount <= 0 {
		c.MaxBatchCount = DefaultMaxBatchCount
	}
	if c.MaxBatchBytes <= 0 {
		c.MaxBatchBytes = DefaultMaxBatchBytes
	}
	return c
}

// Fetcher opens dataset streams.
type Fetcher struct {
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a Fetcher, applying defaults for zero Config values.
func New(cfg Config, logger *slog.Logger) *Fetcher {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: NewHTTPClient(cfg),
		cfg:    cfg,
		logger: logger,
	}
}

// NewHTTPClient builds the client used for dataset downloads. It has no
// overall timeout: a large dataset may legitimately stream for a long time,
// and stalls are caught by the inactivity timeout instead. The wait for
// response headers is bounded by the stream itself so that it surfaces as
// ErrFetchTimeout.
func NewHTTPClient(cfg Config) *http.Client {
	cfg = cfg.withDefaults()
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:    10,
			IdleConnTimeout: 90 * time.Second,
		}
	}
	return &http.Client{Transport: transport}
}

// Fetch returns a lazy stream over the JSON array served at url. No request is
// made until the first call to Next. ctx bounds the whole transfer; cancelling
// it aborts the stream. batchSize overrides MaxBatchCount when positive.
//
// The caller must Close the stream.
func (f *Fetcher) Fetch(ctx context.Context, url string, batchSize int) *Stream {
	if batchSize <= 0 {
		batchSize = f.cfg.MaxBatchCount
	}
	f.logger.Info("fetching dataset", "url", url, "batch_size", batchSize)
	return &Stream{
		ctx:       ctx,
		url:       url,
		batchSize: batchSize,
		maxBytes:  f.cfg.MaxBatchBytes,
		fetcher:   f,
		logger:    f.logger,
	}
}
