// Package manifest resolves the deployment manifest that describes how the
// catalog database is published: chunked behind HTTP range requests, or as a
// single monolithic file.
//
// The manifest is a small JSON document served beside the database. It is
// fetched exactly once per bootstrap attempt; all relative asset paths are
// resolved into absolute URLs at that point, because downstream consumers
// (download workers, alternative sources) have no notion of a "current page"
// to resolve against.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Mode selects the loading strategy for the database image.
type Mode string

const (
	// ModeChunked fetches the database in parallel byte-range requests.
	ModeChunked Mode = "chunked"
	// ModeFull downloads the database in a single request.
	ModeFull Mode = "full"
)

// Compression names supported by the optional "compression" field.
const (
	CompressionNone = ""
	CompressionZstd = "zstd"
	CompressionGzip = "gzip"
	CompressionLZ4  = "lz4"
)

// Config is the validated, session-immutable result of resolving a manifest.
type Config struct {
	Mode Mode
	// ChunkSize is the byte-range request size. Required when Mode is
	// ModeChunked.
	ChunkSize int64
	// TotalSize is the size of the published database image in bytes.
	// Zero means unknown; the source is asked instead.
	TotalSize int64
	// Compression names the codec applied to the published image, if any.
	Compression string
	// DatabaseURL is the absolute location of the database image.
	DatabaseURL *url.URL
	// WorkerURL and WASMURL locate the browser client's worker assets. They
	// are carried and resolved because the same manifest serves the sibling
	// web client; this layer does not fetch them.
	WorkerURL *url.URL
	WASMURL   *url.URL
}

// ConfigError indicates the manifest was unreachable, malformed, or missing
// required fields. It is fatal for the bootstrap attempt that hit it;
// callers must not retry resolution silently.
type ConfigError struct {
	URL    string
	Reason string
	cause  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("manifest %s: %s", e.URL, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.cause }

// fileConfig is the on-disk manifest shape. requestChunkSize is a legacy
// alias for chunkSizeBytes kept for already-deployed catalogs.
type fileConfig struct {
	Mode             string `json:"mode"`
	ChunkSizeBytes   int64  `json:"chunkSizeBytes"`
	RequestChunkSize int64  `json:"requestChunkSize"`
	TotalSizeBytes   int64  `json:"totalSizeBytes"`
	Compression      string `json:"compression"`
	AssetBaseURL     string `json:"assetBaseUrl"`
	DatabaseURL      string `json:"databaseUrl"`
	WorkerURL        string `json:"workerUrl"`
	WASMURL          string `json:"wasmUrl"`
}

// Resolve fetches and validates the manifest at manifestURL.
//
// If client is nil, http.DefaultClient is used. Every failure is reported as
// a *ConfigError wrapping the underlying cause.
func Resolve(ctx context.Context, client *http.Client, manifestURL string) (*Config, error) {
	if client == nil {
		client = http.DefaultClient
	}

	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, &ConfigError{URL: manifestURL, Reason: "invalid manifest URL", cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, &ConfigError{URL: manifestURL, Reason: "build request", cause: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &ConfigError{URL: manifestURL, Reason: "unreachable", cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ConfigError{URL: manifestURL, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ConfigError{URL: manifestURL, Reason: "read body", cause: err}
	}

	return Parse(body, base)
}

// Parse validates raw manifest bytes and resolves asset URLs against base.
func Parse(raw []byte, base *url.URL) (*Config, error) {
	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, &ConfigError{URL: base.String(), Reason: "not valid JSON", cause: err}
	}

	mode := Mode(fc.Mode)
	switch mode {
	case ModeChunked, ModeFull:
	default:
		return nil, &ConfigError{URL: base.String(), Reason: fmt.Sprintf("unknown mode %q", fc.Mode)}
	}

	chunkSize := fc.ChunkSizeBytes
	if chunkSize == 0 {
		chunkSize = fc.RequestChunkSize
	}
	if mode == ModeChunked && chunkSize <= 0 {
		return nil, &ConfigError{URL: base.String(), Reason: "chunked mode requires chunkSizeBytes"}
	}

	switch fc.Compression {
	case CompressionNone, CompressionZstd, CompressionGzip, CompressionLZ4:
	default:
		return nil, &ConfigError{URL: base.String(), Reason: fmt.Sprintf("unknown compression %q", fc.Compression)}
	}

	if fc.DatabaseURL == "" {
		return nil, &ConfigError{URL: base.String(), Reason: "missing databaseUrl"}
	}

	assetBase := base
	if fc.AssetBaseURL != "" {
		resolved, err := resolveRef(base, fc.AssetBaseURL)
		if err != nil {
			return nil, &ConfigError{URL: base.String(), Reason: "invalid assetBaseUrl", cause: err}
		}
		assetBase = resolved
	}

	cfg := &Config{
		Mode:        mode,
		ChunkSize:   chunkSize,
		TotalSize:   fc.TotalSizeBytes,
		Compression: fc.Compression,
	}

	var err error
	if cfg.DatabaseURL, err = resolveRef(assetBase, fc.DatabaseURL); err != nil {
		return nil, &ConfigError{URL: base.String(), Reason: "invalid databaseUrl", cause: err}
	}
	if fc.WorkerURL != "" {
		if cfg.WorkerURL, err = resolveRef(assetBase, fc.WorkerURL); err != nil {
			return nil, &ConfigError{URL: base.String(), Reason: "invalid workerUrl", cause: err}
		}
	}
	if fc.WASMURL != "" {
		if cfg.WASMURL, err = resolveRef(assetBase, fc.WASMURL); err != nil {
			return nil, &ConfigError{URL: base.String(), Reason: "invalid wasmUrl", cause: err}
		}
	}

	return cfg, nil
}

func resolveRef(base *url.URL, ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(u), nil
}
