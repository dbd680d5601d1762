// Package s3 implements fetch.Source for database images published to
// Amazon S3. Range reads map to ranged GetObject calls; the full-download
// path uses the transfer manager for parallel part downloads.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hupe1980/litefetch/fetch"
)

// Source reads a database image from an S3 object.
type Source struct {
	client *s3.Client
	bucket string
	key    string
	size   int64
}

// New creates a source for s3://bucket/key. The object is stat'd once to
// verify existence and capture its size.
func New(ctx context.Context, client *s3.Client, bucket, key string) (*Source, error) {
	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("%w: s3://%s/%s", fetch.ErrNotFound, bucket, key)
		}
		return nil, err
	}
	return &Source{client: client, bucket: bucket, key: key, size: aws.ToInt64(head.ContentLength)}, nil
}

// NewFromURL creates a source for an s3:// URL using the default AWS
// configuration chain.
func NewFromURL(ctx context.Context, u *url.URL) (*Source, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(ctx, s3.NewFromConfig(cfg), u.Host, strings.TrimPrefix(u.Path, "/"))
}

// URL returns the s3:// location.
func (s *Source) URL() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
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

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// ReadAll fetches the whole object.
func (s *Source) ReadAll(ctx context.Context) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// DownloadTo implements fetch.BulkDownloader via the transfer manager,
// which parallelizes part downloads internally.
func (s *Source) DownloadTo(ctx context.Context, dst io.WriterAt) (int64, error) {
	downloader := manager.NewDownloader(s.client)
	return downloader.Download(ctx, dst, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
}
