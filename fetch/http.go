package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// HTTPSource reads a database image over HTTP(S).
//
// Range support is probed lazily: the first ReadRange that comes back with
// 200 instead of 206 marks the host as range-incapable and fails with
// ErrRangeUnsupported from then on.
type HTTPSource struct {
	client *http.Client
	url    *url.URL

	mu       sync.Mutex
	size     int64
	sized    bool
	noRanges bool
}

// NewHTTPSource creates a source for the image at u. If client is nil,
// http.DefaultClient is used.
func NewHTTPSource(client *http.Client, u *url.URL) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{client: client, url: u, size: -1}
}

// URL returns the image location.
func (s *HTTPSource) URL() string { return s.url.String() }

// Size returns the image size, using a HEAD request and falling back to a
// one-byte range GET for hosts that omit Content-Length from HEAD responses.
func (s *HTTPSource) Size(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if s.sized {
		size := s.size
		s.mu.Unlock()
		return size, nil
	}
	s.mu.Unlock()

	size, err := s.head(ctx)
	if err != nil {
		size, err = s.sizeFromRange(ctx)
		if err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	s.size = size
	s.sized = true
	s.mu.Unlock()
	return size, nil
}

func (s *HTTPSource) head(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url.String(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, s.url)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch %s: HEAD status %d", s.url, resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("fetch %s: no content length", s.url)
	}
	return resp.ContentLength, nil
}

// sizeFromRange issues a GET for the first byte and parses Content-Range.
func (s *HTTPSource) sizeFromRange(ctx context.Context) (int64, error) {
	rc, total, err := s.readRange(ctx, 0, 1)
	if err != nil {
		return 0, err
	}
	_ = rc.Close()
	if total < 0 {
		return 0, fmt.Errorf("fetch %s: missing Content-Range total", s.url)
	}
	return total, nil
}

// ReadRange fetches [off, off+length) with a Range header.
func (s *HTTPSource) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	s.mu.Lock()
	noRanges := s.noRanges
	s.mu.Unlock()
	if noRanges {
		return nil, fmt.Errorf("%w: %s", ErrRangeUnsupported, s.url)
	}

	rc, total, err := s.readRange(ctx, off, length)
	if err != nil {
		return nil, err
	}
	if total >= 0 {
		s.mu.Lock()
		s.size = total
		s.sized = true
		s.mu.Unlock()
	}
	return rc, nil
}

func (s *HTTPSource) readRange(ctx context.Context, off, length int64) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url.String(), nil)
	if err != nil {
		return nil, -1, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+length-1))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, -1, err
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return resp.Body, parseContentRangeTotal(resp.Header.Get("Content-Range")), nil
	case http.StatusOK:
		// Host ignored the Range header and is streaming the full image.
		_ = resp.Body.Close()
		s.mu.Lock()
		s.noRanges = true
		s.mu.Unlock()
		return nil, -1, fmt.Errorf("%w: %s answered 200 to a range request", ErrRangeUnsupported, s.url)
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, -1, fmt.Errorf("%w: %s", ErrNotFound, s.url)
	case http.StatusRequestedRangeNotSatisfiable:
		_ = resp.Body.Close()
		return nil, -1, fmt.Errorf("fetch %s: range %d-%d not satisfiable", s.url, off, off+length-1)
	default:
		_ = resp.Body.Close()
		return nil, -1, fmt.Errorf("fetch %s: range status %d", s.url, resp.StatusCode)
	}
}

// ReadAll fetches the entire image with a plain GET.
func (s *HTTPSource) ReadAll(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.url)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", s.url, resp.StatusCode)
	}
	return resp.Body, nil
}

// parseContentRangeTotal extracts the total size from a header like
// "bytes 0-65535/5242880". Returns -1 when absent or unparseable.
func parseContentRangeTotal(header string) int64 {
	idx := strings.LastIndexByte(header, '/')
	if idx < 0 {
		return -1
	}
	total, err := strconv.ParseInt(header[idx+1:], 10, 64)
	if err != nil {
		return -1
	}
	return total
}
