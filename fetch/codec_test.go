package fetch

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompress_RoundTrip(t *testing.T) {
	plain := testImage(50000)

	var zstdBuf bytes.Buffer
	zw, err := zstd.NewWriter(&zstdBuf)
	require.NoError(t, err)
	_, err = zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var gzipBuf bytes.Buffer
	gw := gzip.NewWriter(&gzipBuf)
	_, err = gw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	var lz4Buf bytes.Buffer
	lw := lz4.NewWriter(&lz4Buf)
	_, err = lw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, lw.Close())

	tests := []struct {
		codec      string
		compressed []byte
	}{
		{"zstd", zstdBuf.Bytes()},
		{"gzip", gzipBuf.Bytes()},
		{"lz4", lz4Buf.Bytes()},
		{"", plain},
	}

	for _, tt := range tests {
		t.Run("codec="+tt.codec, func(t *testing.T) {
			rc, err := Decompress(tt.codec, bytes.NewReader(tt.compressed))
			require.NoError(t, err)
			defer rc.Close()

			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, plain, got)
		})
	}
}

func TestDecompress_Unknown(t *testing.T) {
	_, err := Decompress("brotli", bytes.NewReader(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brotli")
}
