package pagination

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warydiaz/json-ingestion-platform/internal/metrics"
	"github.com/warydiaz/json-ingestion-platform/internal/models"
	"github.com/warydiaz/json-ingestion-platform/internal/query"
	"github.com/warydiaz/json-ingestion-platform/internal/store"
)

// Page size bounds.
const (
	DefaultLimit = 10
	MinLimit     = 1
	MaxLimit     = 100
)

// Info describes where a page sits in its sequence.
type Info struct {
	Total      int64   `json:"total"`
	Limit      int     `json:"limit"`
	NextCursor *string `json:"nextCursor"`
	HasMore    bool    `json:"hasMore"`
}

// Page is one response of a cursor-driven read.
type Page struct {
	Data       []models.IngestedRecord `json:"data"`
	Pagination Info                    `json:"pagination"`
}

// Request is a compiled read request.
type Request struct {
	Filter query.CompiledFilter
	Limit  int
	Cursor string
}

// Paginator executes compiled filters against a Store.
type Paginator struct {
	store    store.Store
	compiler *query.Compiler
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// New creates a paginator. A nil compiler selects the default identity fields.
func New(s store.Store, compiler *query.Compiler, logger *slog.Logger) *Paginator {
	if compiler == nil {
		compiler = query.NewCompiler(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Paginator{store: s, compiler: compiler, logger: logger}
}

// WithMetrics records page reads on c.
func (p *Paginator) WithMetrics(c *metrics.Collector) *Paginator {
	p.metrics = c
	return p
}

// Query compiles raw request parameters and returns the requested page.
func (p *Paginator) Query(ctx context.Context, params query.Params) (*Page, error) {
	limit, err := ParseLimit(params[query.ParamLimit])
	if err != nil {
		return nil, err
	}

	filter, err := p.compiler.Compile(params)
	if err != nil {
		return nil, err
	}

	var cursor string
	if raw, ok := params[query.ParamCursor].(string); ok {
		cursor = raw
	}

	return p.Page(ctx, Request{Filter: filter, Limit: limit, Cursor: cursor})
}

// Page fetches limit+1 rows after the cursor, ascending by ID, and counts the
// matching total concurrently. Filters with no predicates use the store's
// approximate count.
func (p *Paginator) Page(ctx context.Context, req Request) (*Page, error) {
	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit < MinLimit || req.Limit > MaxLimit {
		return nil, fmt.Errorf("%w: must be between %d and %d", ErrInvalidLimit, MinLimit, MaxLimit)
	}

	var afterID string
	if req.Cursor != "" {
		id, err := DecodeCursor(req.Cursor)
		if err != nil {
			return nil, err
		}
		afterID = id
	}

	var (
		rows  []models.IngestedRecord
		total int64
	)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = p.store.FindPage(gctx, req.Filter, req.Limit+1, afterID)
		if err != nil {
			return fmt.Errorf("find page: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if req.Filter.Empty() {
			total, err = p.store.CountApproximate(gctx)
		} else {
			total, err = p.store.CountExact(gctx, req.Filter)
		}
		if err != nil {
			return fmt.Errorf("count records: %w", err)
		}
		return nil
	})
	err := g.Wait()
	p.metrics.RecordRecords(metrics.OpReadPage, time.Since(start), int64(len(rows)), err)
	if err != nil {
		return nil, err
	}

	page := &Page{
		Data:       rows,
		Pagination: Info{Total: total, Limit: req.Limit},
	}
	if len(rows) > req.Limit {
		page.Data = rows[:req.Limit]
		next := EncodeCursor(page.Data[req.Limit-1].ID)
		page.Pagination.NextCursor = &next
		page.Pagination.HasMore = true
	}
	if page.Data == nil {
		page.Data = []models.IngestedRecord{}
	}

	p.logger.Debug("read page",
		"records", len(page.Data),
		"total", total,
		"has_more", page.Pagination.HasMore,
		"filters", len(req.Filter.Identity)+len(req.Filter.Attributes),
	)
	return page, nil
}

// ParseLimit reads the limit parameter. A missing value selects DefaultLimit;
// anything that is not an integer within [MinLimit, MaxLimit] is rejected.
func ParseLimit(raw any) (int, error) {
	var n int
	switch v := raw.(type) {
	case nil:
		return DefaultLimit, nil
	case int:
		n = v
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidLimit, v)
		}
		n = int(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return DefaultLimit, nil
		}
		parsed, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidLimit, v)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidLimit, raw)
	}

	if n < MinLimit || n > MaxLimit {
		return 0, fmt.Errorf("%w: must be between %d and %d", ErrInvalidLimit, MinLimit, MaxLimit)
	}
	return n, nil
}
