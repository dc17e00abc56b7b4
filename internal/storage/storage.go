package storage

import (
	"context"
	"errors"
	"io"
)

// ObjectStore reads and writes whole objects addressed by bucket and key.
type ObjectStore interface {
	Get(ctx context.Context, bucket string, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket string, key string, body io.Reader) error
}

var ErrObjectNotFound = errors.New("object not found")

// Location renders an object address the way kaniko expects its context.
func Location(bucket string, key string) string {
	return "s3://" + bucket + "/" + key
}
