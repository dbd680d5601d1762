package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// MemorySource serves a database image from memory. It exists for tests and
// for callers that already hold the image bytes.
type MemorySource struct {
	name string
	data []byte
	// RangeCapable controls whether ReadRange is honored; tests flip it off
	// to simulate hosts without byte-range support.
	RangeCapable bool
}

// NewMemorySource creates a range-capable in-memory source.
func NewMemorySource(name string, data []byte) *MemorySource {
	return &MemorySource{name: name, data: data, RangeCapable: true}
}

// URL returns the source's display name.
func (s *MemorySource) URL() string { return s.name }

// Size returns the image size.
func (s *MemorySource) Size(_ context.Context) (int64, error) {
	return int64(len(s.data)), nil
}

// ReadRange returns a reader over [off, off+length), truncated at the end
// of the image.
func (s *MemorySource) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if !s.RangeCapable {
		return nil, fmt.Errorf("%w: %s", ErrRangeUnsupported, s.name)
	}
	if off < 0 || off >= int64(len(s.data)) {
		return nil, fmt.Errorf("fetch %s: offset %d out of range", s.name, off)
	}
	end := off + length
	if end > int64(len(s.data)) {
		end = int64(len(s.data))
	}
	return io.NopCloser(bytes.NewReader(s.data[off:end])), nil
}

// ReadAll returns a reader over the whole image.
func (s *MemorySource) ReadAll(_ context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}
