package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// writerAt is an in-memory io.WriterAt for assembly tests.
type writerAt struct {
	mu   sync.Mutex
	data []byte
}

func (w *writerAt) WriteAt(p []byte, off int64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if need := off + int64(len(p)); need > int64(len(w.data)) {
		grown := make([]byte, need)
		copy(grown, w.data)
		w.data = grown
	}
	return copy(w.data[off:], p), nil
}

// countingSource wraps a MemorySource and counts range requests.
type countingSource struct {
	*MemorySource
	mu     sync.Mutex
	ranges int
}

func (s *countingSource) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	s.mu.Lock()
	s.ranges++
	s.mu.Unlock()
	return s.MemorySource.ReadRange(ctx, off, length)
}

func TestDownloader_Assembly(t *testing.T) {
	data := testImage(100000) // not a multiple of the chunk size
	src := &countingSource{MemorySource: NewMemorySource("mem", data)}
	dst := &writerAt{}

	d := &Downloader{ChunkSize: 4096, Concurrency: 8}
	n, err := d.Download(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)), n)
	assert.True(t, bytes.Equal(data, dst.data))

	wantChunks := (len(data) + 4095) / 4096
	assert.Equal(t, wantChunks, src.ranges)
}

func TestDownloader_SingleChunkLargerThanImage(t *testing.T) {
	data := testImage(100)
	dst := &writerAt{}

	d := &Downloader{ChunkSize: 4096}
	n, err := d.Download(context.Background(), NewMemorySource("mem", data), dst)
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
	assert.Equal(t, data, dst.data)
}

func TestDownloader_RangeUnsupported(t *testing.T) {
	src := NewMemorySource("mem", testImage(1000))
	src.RangeCapable = false

	d := &Downloader{ChunkSize: 256}
	_, err := d.Download(context.Background(), src, &writerAt{})
	require.ErrorIs(t, err, ErrRangeUnsupported)
}

func TestDownloader_EmptyImage(t *testing.T) {
	d := &Downloader{ChunkSize: 256}
	_, err := d.Download(context.Background(), NewMemorySource("mem", nil), &writerAt{})
	require.Error(t, err)
}

func TestDownloader_ShortChunk(t *testing.T) {
	src := &truncatingSource{MemorySource: NewMemorySource("mem", testImage(1000))}

	d := &Downloader{ChunkSize: 256}
	_, err := d.Download(context.Background(), src, &writerAt{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short read")
}

// truncatingSource drops the last byte of every range, simulating a host
// that terminates responses early.
type truncatingSource struct {
	*MemorySource
}

func (s *truncatingSource) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	rc, err := s.MemorySource.ReadRange(ctx, off, length)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		data = data[:len(data)-1]
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestDownloader_RateLimited(t *testing.T) {
	data := testImage(2048)
	src := &countingSource{MemorySource: NewMemorySource("mem", data)}
	dst := &writerAt{}

	d := &Downloader{ChunkSize: 256, Concurrency: 2, Limiter: rate.NewLimiter(rate.Inf, 1)}
	n, err := d.Download(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, dst.data)
}

func TestDownloader_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blocked := &blockingSource{MemorySource: NewMemorySource("mem", testImage(10000))}
	d := &Downloader{ChunkSize: 256, Limiter: rate.NewLimiter(1, 1)}
	_, err := d.Download(ctx, blocked, &writerAt{})
	require.Error(t, err)
}

type blockingSource struct {
	*MemorySource
}

func (s *blockingSource) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("cancelled: %w", ctx.Err())
}
