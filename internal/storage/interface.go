package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStorage defines the interface for object storage operations
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// PresignPut returns a time-limited URL for uploading an object directly
	PresignPut(ctx context.Context, key string, contentType string, ttl time.Duration) (string, error)

	// PresignGet returns a time-limited URL for retrieving an object
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// EnsureBucket creates the bucket if it doesn't exist
	EnsureBucket(ctx context.Context) error
}
