// Package blob reads uploaded objects from S3 or from a local directory.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/JonMunkholm/foodingest/internal/food"
)

// ErrTooLarge is wrapped in a BlobReadError when an object exceeds the
// configured size limit.
var ErrTooLarge = errors.New("object exceeds maximum size")

// S3API is the subset of *s3.Client used by S3.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 reads whole objects with GetObject.
type S3 struct {
	client  S3API
	maxSize int64
}

// NewS3 returns a reader over client. A non-positive maxSize disables the
// size check.
func NewS3(client S3API, maxSize int64) *S3 {
	return &S3{client: client, maxSize: maxSize}
}

// Get returns the object's bytes.
func (s *S3) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, &food.BlobReadError{Bucket: bucket, Key: key, Err: fmt.Errorf("object not found: %w", err)}
		}
		return nil, &food.BlobReadError{Bucket: bucket, Key: key, Err: err}
	}
	defer out.Body.Close()

	if s.maxSize > 0 && aws.ToInt64(out.ContentLength) > s.maxSize {
		return nil, &food.BlobReadError{Bucket: bucket, Key: key, Err: ErrTooLarge}
	}

	data, err := readLimited(out.Body, s.maxSize)
	if err != nil {
		return nil, &food.BlobReadError{Bucket: bucket, Key: key, Err: err}
	}
	return data, nil
}

// readLimited reads r fully, failing with ErrTooLarge past max bytes.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if n > max {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}
