package litefetch

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/litefetch/cache"
	"github.com/hupe1980/litefetch/fetch"
	"github.com/hupe1980/litefetch/query"
)

type options struct {
	logger        *Logger
	httpClient    *http.Client
	readyTimeout  time.Duration
	cacheCapacity int
	cacheTTL      time.Duration
	schema        query.Schema
	source        fetch.Source
	limiter       *rate.Limiter
	concurrency   int
	spoolDir      string
}

// Option configures Client constructor behavior.
type Option func(*options)

// WithLogger configures structured logging for catalog operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := litefetch.NewJSONLogger(slog.LevelInfo)
//	c, _ := litefetch.Open(ctx, manifestURL, litefetch.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithHTTPClient configures the HTTP client used for manifest resolution and
// catalog downloads. Defaults to http.DefaultClient.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client == nil {
			client = http.DefaultClient
		}
		o.httpClient = client
	}
}

// WithReadyTimeout bounds how long Open waits for the chunked engine to
// report ready before abandoning it and falling back to a full download.
func WithReadyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readyTimeout = d
	}
}

// WithCacheCapacity configures the maximum number of cached result sets.
// A capacity of zero or less disables caching.
func WithCacheCapacity(n int) Option {
	return func(o *options) {
		o.cacheCapacity = n
	}
}

// WithCacheTTL configures how long a cached result set remains valid.
func WithCacheTTL(d time.Duration) Option {
	return func(o *options) {
		o.cacheTTL = d
	}
}

// WithSchema configures the catalog schema used by Search: the table name
// and the allow-listed search, facet, range, and sort columns. Defaults to
// query.DefaultSchema.
func WithSchema(schema query.Schema) Option {
	return func(o *options) {
		o.schema = schema
	}
}

// WithSource overrides the catalog source derived from the manifest's
// database URL. Useful for pointing at object storage or a local file while
// keeping the manifest for chunk-size and mode settings.
func WithSource(src fetch.Source) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithRequestsPerSecond throttles chunk requests during the chunked
// download. Zero or less leaves downloads unthrottled.
func WithRequestsPerSecond(rps float64) Option {
	return func(o *options) {
		if rps > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithDownloadConcurrency configures how many chunks are fetched in
// parallel during the chunked download.
func WithDownloadConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// WithSpoolDir configures the directory for the temporary catalog file.
// Defaults to the system temp directory.
func WithSpoolDir(dir string) Option {
	return func(o *options) {
		o.spoolDir = dir
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:        NoopLogger(),
		httpClient:    http.DefaultClient,
		cacheCapacity: cache.DefaultCapacity,
		cacheTTL:      cache.DefaultTTL,
		schema:        query.DefaultSchema(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
