// Package fetch provides sources for reading a published database image:
// HTTP with byte-range requests, local files, and in-memory data, with S3
// and MinIO backends in subpackages.
//
// A Source exposes two retrieval styles matching the two loading strategies
// of the access layer: ReadRange for chunked partial fetches and ReadAll for
// the monolithic fallback. Sources that cannot serve ranges report
// ErrRangeUnsupported, which is an expected condition (a static host without
// HTTP 206 support), not a defect.
package fetch

import (
	"context"
	"errors"
	"io"
)

// ErrRangeUnsupported is returned by ReadRange when the backing host does
// not honor byte-range requests. Callers fall back to ReadAll.
var ErrRangeUnsupported = errors.New("fetch: byte ranges not supported by source")

// ErrNotFound is returned when the database image does not exist.
var ErrNotFound = errors.New("fetch: not found")

// Source is a read-only handle to a published database image.
//
// Implementations must be safe for concurrent use: the chunked downloader
// issues ReadRange calls from multiple goroutines.
type Source interface {
	// URL returns a human-readable location for diagnostics.
	URL() string
	// Size returns the total size of the image in bytes.
	Size(ctx context.Context) (int64, error)
	// ReadRange returns a reader over [off, off+length). The final range of
	// an image may be shorter than requested; the reader then yields only
	// the available bytes.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	// ReadAll returns a reader over the entire image.
	ReadAll(ctx context.Context) (io.ReadCloser, error)
}

// BulkDownloader is an optional interface for sources with a native
// whole-object download path (e.g. the S3 transfer manager). The full-file
// fallback prefers it over ReadAll when available.
type BulkDownloader interface {
	// DownloadTo writes the entire image to dst and returns the byte count.
	DownloadTo(ctx context.Context, dst io.WriterAt) (int64, error)
}
