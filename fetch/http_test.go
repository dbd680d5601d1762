package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// rangeServer serves data honoring Range headers (http.ServeContent does the
// 206 handling). With ranges disabled it streams the full body regardless,
// which is how misconfigured static hosts behave.
func rangeServer(t *testing.T, data []byte, ranges bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ranges {
			http.ServeContent(w, r, "catalog.db", time.Time{}, bytes.NewReader(data))
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sourceFor(t *testing.T, srv *httptest.Server) *HTTPSource {
	t.Helper()
	u, err := url.Parse(srv.URL + "/catalog.db")
	require.NoError(t, err)
	return NewHTTPSource(srv.Client(), u)
}

func TestHTTPSource_Size(t *testing.T) {
	data := testImage(10000)
	src := sourceFor(t, rangeServer(t, data, true))

	size, err := src.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
}

func TestHTTPSource_ReadRange(t *testing.T) {
	data := testImage(10000)
	src := sourceFor(t, rangeServer(t, data, true))

	rc, err := src.ReadRange(context.Background(), 100, 50)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data[100:150], got)
}

func TestHTTPSource_ReadRange_TailTruncated(t *testing.T) {
	data := testImage(1000)
	src := sourceFor(t, rangeServer(t, data, true))

	rc, err := src.ReadRange(context.Background(), 900, 500)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data[900:], got)
}

func TestHTTPSource_ReadRange_Unsupported(t *testing.T) {
	data := testImage(1000)
	src := sourceFor(t, rangeServer(t, data, false))

	_, err := src.ReadRange(context.Background(), 0, 100)
	require.ErrorIs(t, err, ErrRangeUnsupported)

	// The incapability is sticky: no second probe request is issued.
	_, err = src.ReadRange(context.Background(), 100, 100)
	require.ErrorIs(t, err, ErrRangeUnsupported)
}

func TestHTTPSource_ReadAll(t *testing.T) {
	data := testImage(5000)
	src := sourceFor(t, rangeServer(t, data, false))

	rc, err := src.ReadAll(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestHTTPSource_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	src := sourceFor(t, srv)

	_, err := src.ReadAll(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = src.ReadRange(context.Background(), 0, 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseContentRangeTotal(t *testing.T) {
	assert.Equal(t, int64(5242880), parseContentRangeTotal("bytes 0-65535/5242880"))
	assert.Equal(t, int64(-1), parseContentRangeTotal("bytes 0-65535/*"))
	assert.Equal(t, int64(-1), parseContentRangeTotal(""))
}
