package fetch

import (
	"context"
	"io"
	"os"
)

// LocalSource reads a database image from the local file system. Useful for
// development against a not-yet-published catalog and for the CLI.
type LocalSource struct {
	path string
}

// NewLocalSource creates a source for the file at path.
func NewLocalSource(path string) *LocalSource {
	return &LocalSource{path: path}
}

// URL returns the file path.
func (s *LocalSource) URL() string { return s.path }

// Size returns the file size.
func (s *LocalSource) Size(_ context.Context) (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

// ReadRange returns a reader over a section of the file. Each call opens an
// independent descriptor so concurrent ranges do not share a file offset.
func (s *LocalSource) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sectionCloser{Reader: io.NewSectionReader(f, off, length), f: f}, nil
}

// ReadAll returns a reader over the whole file.
func (s *LocalSource) ReadAll(_ context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

type sectionCloser struct {
	io.Reader
	f *os.File
}

func (s *sectionCloser) Close() error { return s.f.Close() }
