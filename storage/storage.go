package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrNotFound = errors.New("object not found")

// ObjectStore is a key-addressed blob store. The pipeline only needs get,
// put, delete and a time-limited download URL.
type ObjectStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Put(ctx context.Context, key string, body io.ReadSeeker, contentType string, metadata map[string]string) error
	Delete(ctx context.Context, key string) error
	SignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
