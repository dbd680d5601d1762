package litefetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/hupe1980/litefetch/cache"
	"github.com/hupe1980/litefetch/engine"
	"github.com/hupe1980/litefetch/fetch"
	s3fetch "github.com/hupe1980/litefetch/fetch/s3"
	"github.com/hupe1980/litefetch/manifest"
	"github.com/hupe1980/litefetch/query"
)

// Status reports the lifecycle phase of the catalog engine.
type Status = engine.Status

// Lifecycle phases, re-exported for callers of Status and OnStatusChange.
const (
	StatusNotInitialized = engine.StatusNotInitialized
	StatusInitializing   = engine.StatusInitializing
	StatusReady          = engine.StatusReady
	StatusDegraded       = engine.StatusDegraded
	StatusError          = engine.StatusError
)

// Diagnostic carries failure context alongside an error status.
type Diagnostic = engine.Diagnostic

// SearchResult is one page of catalog records plus the unpaged match count.
type SearchResult struct {
	// Rows is the requested page, at most Page.Size records.
	Rows []query.Row
	// Total is the number of records matching the filters across all pages.
	Total int64
	// Page is the page actually served, after clamping.
	Page int
}

// Client is a read-only session over one published catalog. It resolves the
// deployment manifest lazily, bootstraps the engine on first use, and caches
// result sets.
//
// All methods are safe for concurrent use.
type Client struct {
	opts   options
	health *engine.Health
	boot   *engine.Bootstrapper
	exec   *engine.Executor
	cache  *cache.Cache
}

// Open creates a Client for the catalog published at manifestURL. No network
// I/O happens until the first query (or an explicit Warm call).
func Open(manifestURL string, optFns ...Option) (*Client, error) {
	if manifestURL == "" {
		return nil, fmt.Errorf("litefetch: manifest URL is empty")
	}
	o := applyOptions(optFns)

	c := &Client{
		opts:   o,
		health: engine.NewHealth(),
	}

	c.boot = engine.NewBootstrapper(engine.BootstrapConfig{
		Resolve: func(ctx context.Context) (*manifest.Config, error) {
			return manifest.Resolve(ctx, o.httpClient, manifestURL)
		},
		OpenSource:   c.openSource,
		Health:       c.health,
		ReadyTimeout: o.readyTimeout,
		SpoolDir:     o.spoolDir,
		Concurrency:  o.concurrency,
		Limiter:      o.limiter,
		Logger:       o.logger.Logger,
	})
	c.exec = engine.NewExecutor(c.boot, o.logger.Logger)

	if o.cacheCapacity > 0 {
		c.cache = cache.New(c.exec.Execute,
			cache.WithCapacity(o.cacheCapacity),
			cache.WithTTL(o.cacheTTL))
	}
	return c, nil
}

// openSource dispatches on the resolved database URL's scheme. An explicit
// WithSource override wins.
func (c *Client) openSource(ctx context.Context, u *url.URL) (fetch.Source, error) {
	if c.opts.source != nil {
		return c.opts.source, nil
	}
	switch u.Scheme {
	case "http", "https":
		return fetch.NewHTTPSource(c.opts.httpClient, u), nil
	case "s3":
		return s3fetch.NewFromURL(ctx, u)
	case "file":
		return fetch.NewLocalSource(u.Path), nil
	case "":
		return fetch.NewLocalSource(u.String()), nil
	default:
		return nil, fmt.Errorf("litefetch: unsupported database URL scheme %q", u.Scheme)
	}
}

// Warm bootstraps the engine without running a query. Useful for surfacing
// configuration and download failures at startup rather than on the first
// user interaction.
func (c *Client) Warm(ctx context.Context) error {
	_, err := c.boot.Engine(ctx)
	return err
}

// Query runs a parameterized read against the catalog, serving repeats from
// the result cache. Identical in-flight requests are coalesced into one
// engine execution.
func (c *Client) Query(ctx context.Context, sqlText string, params ...any) (query.Result, error) {
	req := query.Request{SQL: sqlText, Params: params}
	if c.cache == nil {
		return c.exec.Execute(ctx, req)
	}
	return c.cache.Execute(ctx, req)
}

// Execute runs a parameterized read, bypassing the result cache.
func (c *Client) Execute(ctx context.Context, sqlText string, params ...any) (query.Result, error) {
	return c.exec.Execute(ctx, query.Request{SQL: sqlText, Params: params})
}

// Search runs one faceted catalog search: a page of records plus the total
// match count, both derived from the same filter set.
func (c *Client) Search(ctx context.Context, filters query.FilterSet, sort query.Sort, page query.Page) (*SearchResult, error) {
	pageReq, countReq, err := query.Build(c.opts.schema, filters, sort, page)
	if err != nil {
		return nil, err
	}

	pageRes, err := c.run(ctx, pageReq)
	if err != nil {
		return nil, err
	}
	countRes, err := c.run(ctx, countReq)
	if err != nil {
		return nil, err
	}

	served := page.Number
	if served < 1 {
		served = 1
	}
	return &SearchResult{
		Rows:  pageRes.Rows,
		Total: totalFrom(countRes),
		Page:  served,
	}, nil
}

func (c *Client) run(ctx context.Context, req query.Request) (query.Result, error) {
	if c.cache == nil {
		return c.exec.Execute(ctx, req)
	}
	return c.cache.Execute(ctx, req)
}

// totalFrom pulls the COUNT(*) scalar out of a count result. The engine
// returns sqlite integers as int64; anything else counts as zero rows.
func totalFrom(res query.Result) int64 {
	if len(res.Rows) == 0 {
		return 0
	}
	switch v := res.Rows[0]["total"].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Status reports the engine lifecycle phase.
func (c *Client) Status() Status {
	return c.health.Status()
}

// Diagnostic returns failure context for the current status, or nil.
func (c *Client) Diagnostic() *Diagnostic {
	return c.health.Diagnostic()
}

// OnStatusChange registers fn for lifecycle transitions and returns an
// unsubscribe func. fn runs synchronously on the transitioning goroutine;
// keep it cheap.
func (c *Client) OnStatusChange(fn func(Status, *Diagnostic)) (unsubscribe func()) {
	return c.health.OnChange(fn)
}

// Close releases the engine and its spooled database file. The Client must
// not be used afterwards.
func (c *Client) Close() error {
	if err := c.boot.Close(); err != nil {
		c.opts.logger.Error("close failed", slog.Any("error", err))
		return err
	}
	return nil
}
