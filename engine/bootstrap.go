package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/hupe1980/litefetch/fetch"
	"github.com/hupe1980/litefetch/manifest"
)

// DefaultReadyTimeout bounds how long the chunked worker may take to signal
// readiness before the bootstrap falls back to a full download.
const DefaultReadyTimeout = 30 * time.Second

// SourceOpener turns a resolved asset URL into a fetch.Source. The facade
// injects scheme dispatch (http, s3, file) here so this package stays free
// of backend imports.
type SourceOpener func(ctx context.Context, u *url.URL) (fetch.Source, error)

// BootstrapConfig wires a Bootstrapper.
type BootstrapConfig struct {
	// Resolve fetches the deployment manifest. Required.
	Resolve func(ctx context.Context) (*manifest.Config, error)
	// OpenSource opens the database image for a resolved URL. Required.
	OpenSource SourceOpener
	// Health receives lifecycle transitions. Required.
	Health *Health
	// ReadyTimeout bounds chunked-worker startup. Zero means
	// DefaultReadyTimeout.
	ReadyTimeout time.Duration
	// SpoolDir is where database images are spooled. Empty means the
	// system temp directory.
	SpoolDir string
	// Concurrency bounds parallel chunk requests. Zero means the fetch
	// package default.
	Concurrency int
	// Limiter optionally rate-limits chunk requests.
	Limiter *rate.Limiter
	// Logger may be nil.
	Logger *slog.Logger
}

// Bootstrapper produces the session's one engine Handle.
//
// Engine is safe to call from any number of goroutines: a single bootstrap
// runs at a time, concurrent callers share its outcome, and after success
// the cached handle is returned without further I/O. After a failed attempt
// the next call starts a fresh one.
type Bootstrapper struct {
	cfg BootstrapConfig

	group singleflight.Group

	mu     sync.Mutex
	handle Handle
}

// NewBootstrapper creates a Bootstrapper. No I/O happens until the first
// Engine call.
func NewBootstrapper(cfg BootstrapConfig) *Bootstrapper {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Bootstrapper{cfg: cfg}
}

// Engine returns the session handle, bootstrapping it on first use.
func (b *Bootstrapper) Engine(ctx context.Context) (Handle, error) {
	b.mu.Lock()
	if b.handle != nil {
		h := b.handle
		b.mu.Unlock()
		return h, nil
	}
	b.mu.Unlock()

	v, err, _ := b.group.Do("bootstrap", func() (any, error) {
		return b.bootstrap(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(Handle), nil
}

// Close releases the engine handle, if one was ever created.
func (b *Bootstrapper) Close() error {
	b.mu.Lock()
	h := b.handle
	b.handle = nil
	b.mu.Unlock()

	if h == nil {
		return nil
	}
	return h.Close()
}

func (b *Bootstrapper) bootstrap(ctx context.Context) (Handle, error) {
	b.cfg.Health.set(StatusInitializing, nil)

	cfg, err := b.cfg.Resolve(ctx)
	if err != nil {
		b.cfg.Health.set(StatusError, &Diagnostic{Classification: "config", Err: err})
		return nil, err
	}

	src, err := b.cfg.OpenSource(ctx, cfg.DatabaseURL)
	if err != nil {
		b.cfg.Health.set(StatusError, &Diagnostic{
			URL:            cfg.DatabaseURL.String(),
			Classification: "bootstrap_failed",
			Err:            err,
		})
		return nil, &BootstrapError{URL: cfg.DatabaseURL.String(), cause: err}
	}

	degraded := false
	var handle Handle

	if cfg.Mode == manifest.ModeChunked {
		handle, err = b.startChunked(cfg, src)
		if err != nil {
			// Expected for hosts without range support, slow workers, and
			// similar environmental trouble. The fallback is the safety net.
			b.cfg.Logger.Warn("chunked engine failed, falling back to full download",
				slog.String("database", cfg.DatabaseURL.String()),
				slog.Any("error", err))
			degraded = true
		}
	}

	if handle == nil {
		handle, err = b.fullDownload(ctx, cfg, src)
		if err != nil {
			b.cfg.Health.set(StatusError, &Diagnostic{
				URL:            cfg.DatabaseURL.String(),
				Classification: "bootstrap_failed",
				Err:            err,
			})
			return nil, &BootstrapError{URL: cfg.DatabaseURL.String(), cause: err}
		}
	}

	b.mu.Lock()
	b.handle = handle
	b.mu.Unlock()

	if degraded {
		b.cfg.Health.set(StatusDegraded, &Diagnostic{
			URL:            cfg.DatabaseURL.String(),
			Classification: "chunked_failed",
		})
	} else {
		b.cfg.Health.set(StatusReady, nil)
	}
	return handle, nil
}

// startChunked launches the chunked worker and awaits its ready signal
// within the configured timeout.
func (b *Bootstrapper) startChunked(cfg *manifest.Config, src fetch.Source) (Handle, error) {
	w := startWorker(workerConfig{
		source:      src,
		chunkSize:   cfg.ChunkSize,
		compression: cfg.Compression,
		spoolDir:    b.cfg.SpoolDir,
		concurrency: b.cfg.Concurrency,
		limiter:     b.cfg.Limiter,
		logger:      b.cfg.Logger,
	})

	select {
	case err := <-w.ready:
		if err != nil {
			w.close()
			return nil, err
		}
		return &workerHandle{w: w}, nil
	case <-time.After(b.cfg.ReadyTimeout):
		// Abandon the worker; close releases its spool once the download
		// unwinds.
		go w.close()
		return nil, fmt.Errorf("engine worker not ready within %s", b.cfg.ReadyTimeout)
	}
}

// fullDownload spools the whole image in one request and opens the engine
// in-process. No chunk configuration, no worker: reliability over elegance.
func (b *Bootstrapper) fullDownload(ctx context.Context, cfg *manifest.Config, src fetch.Source) (Handle, error) {
	spool, err := spoolFull(ctx, src, cfg.Compression, b.cfg.SpoolDir)
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(spool)
	if err != nil {
		_ = os.Remove(spool)
		return nil, err
	}

	b.cfg.Logger.Debug("full-download engine ready",
		slog.String("source", src.URL()))
	return &directHandle{db: db, spool: spool}, nil
}
