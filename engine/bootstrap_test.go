package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/litefetch/fetch"
	"github.com/hupe1980/litefetch/manifest"
	"github.com/hupe1980/litefetch/testutil"
)

func catalogImage(t *testing.T) []byte {
	t.Helper()
	return testutil.BuildCatalog(t, testutil.DefaultBuildings())
}

func chunkedConfig(t *testing.T) *manifest.Config {
	t.Helper()
	u, err := url.Parse("https://example.com/catalog.db")
	require.NoError(t, err)
	return &manifest.Config{Mode: manifest.ModeChunked, ChunkSize: 4096, DatabaseURL: u}
}

func fullConfig(t *testing.T) *manifest.Config {
	t.Helper()
	cfg := chunkedConfig(t)
	cfg.Mode = manifest.ModeFull
	cfg.ChunkSize = 0
	return cfg
}

func newTestBootstrapper(t *testing.T, cfg *manifest.Config, src fetch.Source) (*Bootstrapper, *Health) {
	t.Helper()
	health := NewHealth()
	b := NewBootstrapper(BootstrapConfig{
		Resolve:    func(context.Context) (*manifest.Config, error) { return cfg, nil },
		OpenSource: func(context.Context, *url.URL) (fetch.Source, error) { return src, nil },
		Health:     health,
		SpoolDir:   t.TempDir(),
	})
	t.Cleanup(func() { _ = b.Close() })
	return b, health
}

func TestBootstrapper_Chunked(t *testing.T) {
	src := fetch.NewMemorySource("mem", catalogImage(t))
	b, health := newTestBootstrapper(t, chunkedConfig(t), src)

	h, err := b.Engine(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, StatusReady, health.Status())

	raw, err := h.Exec(context.Background(), "SELECT COUNT(*) AS total FROM buildings", nil)
	require.NoError(t, err)
	require.Len(t, raw.Values, 1)
	assert.Equal(t, int64(len(testutil.DefaultBuildings())), raw.Values[0][0])
}

func TestBootstrapper_Idempotent(t *testing.T) {
	var opens int
	src := fetch.NewMemorySource("mem", catalogImage(t))
	health := NewHealth()
	b := NewBootstrapper(BootstrapConfig{
		Resolve: func(context.Context) (*manifest.Config, error) {
			opens++
			return chunkedConfig(t), nil
		},
		OpenSource: func(context.Context, *url.URL) (fetch.Source, error) { return src, nil },
		Health:     health,
		SpoolDir:   t.TempDir(),
	})
	t.Cleanup(func() { _ = b.Close() })

	const callers = 16
	handles := make([]Handle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := b.Engine(context.Background())
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	// One bootstrap ran; every caller got the referentially-identical handle.
	assert.Equal(t, 1, opens)
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}

	// Subsequent calls return the cached handle without resolving again.
	h, err := b.Engine(context.Background())
	require.NoError(t, err)
	assert.Same(t, handles[0], h)
	assert.Equal(t, 1, opens)
}

func TestBootstrapper_FullMode(t *testing.T) {
	src := fetch.NewMemorySource("mem", catalogImage(t))
	src.RangeCapable = false
	b, health := newTestBootstrapper(t, fullConfig(t), src)

	h, err := b.Engine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusReady, health.Status())

	raw, err := h.Exec(context.Background(), "SELECT name FROM buildings ORDER BY name LIMIT 1", nil)
	require.NoError(t, err)
	require.Len(t, raw.Values, 1)
}

func TestBootstrapper_FallbackWithoutRangeSupport(t *testing.T) {
	// Chunked mode against a host that ignores Range headers: the chunked
	// attempt dies with ErrRangeUnsupported and the full download rescues it.
	src := fetch.NewMemorySource("mem", catalogImage(t))
	src.RangeCapable = false
	b, health := newTestBootstrapper(t, chunkedConfig(t), src)

	h, err := b.Engine(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Equal(t, StatusDegraded, health.Status())
	require.NotNil(t, health.Diagnostic())
	assert.Equal(t, "chunked_failed", health.Diagnostic().Classification)

	_, err = h.Exec(context.Background(), "SELECT COUNT(*) FROM buildings", nil)
	assert.NoError(t, err)
}

// stalledSource blocks range reads until its context dies, simulating a
// worker that never becomes ready. Full reads work.
type stalledSource struct {
	*fetch.MemorySource
}

func (s *stalledSource) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("stalled: %w", ctx.Err())
}

func TestBootstrapper_ReadyTimeoutFallsBack(t *testing.T) {
	src := &stalledSource{MemorySource: fetch.NewMemorySource("mem", catalogImage(t))}
	health := NewHealth()
	b := NewBootstrapper(BootstrapConfig{
		Resolve:      func(context.Context) (*manifest.Config, error) { return chunkedConfig(t), nil },
		OpenSource:   func(context.Context, *url.URL) (fetch.Source, error) { return src, nil },
		Health:       health,
		ReadyTimeout: 100 * time.Millisecond,
		SpoolDir:     t.TempDir(),
	})
	t.Cleanup(func() { _ = b.Close() })

	h, err := b.Engine(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, StatusDegraded, health.Status())
}

func TestBootstrapper_BothPathsFailThenRetry(t *testing.T) {
	var broken = true
	image := catalogImage(t)
	src := &flakySource{image: image, broken: &broken}

	health := NewHealth()
	b := NewBootstrapper(BootstrapConfig{
		Resolve:    func(context.Context) (*manifest.Config, error) { return fullConfig(t), nil },
		OpenSource: func(context.Context, *url.URL) (fetch.Source, error) { return src, nil },
		Health:     health,
		SpoolDir:   t.TempDir(),
	})
	t.Cleanup(func() { _ = b.Close() })

	_, err := b.Engine(context.Background())
	var bootErr *BootstrapError
	require.ErrorAs(t, err, &bootErr)
	assert.Equal(t, "https://example.com/catalog.db", bootErr.URL)
	assert.Equal(t, StatusError, health.Status())
	require.NotNil(t, health.Diagnostic())
	assert.Equal(t, "bootstrap_failed", health.Diagnostic().Classification)

	// Explicit retry after the environment recovers.
	broken = false
	h, err := b.Engine(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, StatusReady, health.Status())
}

type flakySource struct {
	image  []byte
	broken *bool
}

func (s *flakySource) URL() string { return "flaky" }

func (s *flakySource) Size(context.Context) (int64, error) { return int64(len(s.image)), nil }

func (s *flakySource) ReadRange(context.Context, int64, int64) (io.ReadCloser, error) {
	return nil, fetch.ErrRangeUnsupported
}

func (s *flakySource) ReadAll(context.Context) (io.ReadCloser, error) {
	if *s.broken {
		return nil, errors.New("connection reset")
	}
	return fetch.NewMemorySource("mem", s.image).ReadAll(context.Background())
}

func TestBootstrapper_ConfigErrorEscalates(t *testing.T) {
	health := NewHealth()
	cfgErr := &manifest.ConfigError{URL: "https://example.com/db-config.json", Reason: "missing databaseUrl"}
	b := NewBootstrapper(BootstrapConfig{
		Resolve:    func(context.Context) (*manifest.Config, error) { return nil, cfgErr },
		OpenSource: func(context.Context, *url.URL) (fetch.Source, error) { return nil, errors.New("unused") },
		Health:     health,
	})

	_, err := b.Engine(context.Background())
	var got *manifest.ConfigError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, StatusError, health.Status())
	assert.Equal(t, "config", health.Diagnostic().Classification)
}

func TestHealth_Subscribe(t *testing.T) {
	h := NewHealth()
	assert.Equal(t, StatusNotInitialized, h.Status())

	var seen []Status
	unsubscribe := h.OnChange(func(s Status, _ *Diagnostic) {
		seen = append(seen, s)
	})

	h.set(StatusInitializing, nil)
	h.set(StatusReady, nil)
	assert.Equal(t, []Status{StatusInitializing, StatusReady}, seen)

	unsubscribe()
	h.set(StatusError, nil)
	assert.Equal(t, []Status{StatusInitializing, StatusReady}, seen)
}

func TestStatus_Strings(t *testing.T) {
	assert.Equal(t, "not_initialized", StatusNotInitialized.String())
	assert.Equal(t, "ready", StatusReady.String())
	assert.True(t, StatusDegraded.Serving())
	assert.False(t, StatusError.Serving())
}
