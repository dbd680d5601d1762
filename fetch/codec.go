package fetch

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Decompress wraps r with a decoder for the named codec. The empty name is
// the identity codec. Supported: "zstd", "gzip", "lz4".
//
// Published images are compressed as a whole, so byte ranges address the
// compressed stream; decompression happens exactly once, after assembly.
func Decompress(codec string, r io.Reader) (io.ReadCloser, error) {
	switch codec {
	case "":
		return io.NopCloser(r), nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return zr.IOReadCloser(), nil
	case "gzip":
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return gr, nil
	case "lz4":
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unknown compression codec %q", codec)
	}
}
