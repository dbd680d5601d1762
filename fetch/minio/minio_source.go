// Package minio implements fetch.Source for MinIO and other S3-compatible
// object stores that the aws-sdk client is not configured for.
package minio

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/litefetch/fetch"
)

// Source reads a database image from a MinIO object.
type Source struct {
	client *minio.Client
	bucket string
	key    string
	size   int64
}

// New creates a source for the object at bucket/key. The object is stat'd
// once to verify existence and capture its size.
func New(ctx context.Context, client *minio.Client, bucket, key string) (*Source, error) {
	info, err := client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil, fmt.Errorf("%w: %s/%s", fetch.ErrNotFound, bucket, key)
		}
		return nil, err
	}
	return &Source{client: client, bucket: bucket, key: key, size: info.Size}, nil
}

// URL returns the bucket/key location.
func (s *Source) URL() string {
	return fmt.Sprintf("minio://%s/%s", s.bucket, s.key)
}

// Size returns the object size captured at construction.
func (s *Source) Size(_ context.Context) (int64, error) {
	return s.size, nil
}

// ReadRange fetches [off, off+length) with a ranged GetObject.
func (s *Source) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= s.size {
		return nil, fmt.Errorf("fetch %s: offset %d out of range", s.URL(), off)
	}
	end := off + length - 1
	if end >= s.size {
		end = s.size - 1
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, end); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// ReadAll fetches the whole object.
func (s *Source) ReadAll(ctx context.Context) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}
