package storage

import (
	"context"
	"io"
)

// ObjectStorage stores corpus exports and other snapshot artifacts.
type ObjectStorage interface {
	// EnsureBucket creates the configured bucket when the backend allows it.
	EnsureBucket(ctx context.Context) error

	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download returns the object body; the caller closes it.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	Exists(ctx context.Context, key string) (bool, error)

	// Location returns a bucket-qualified reference for logs and CLI output.
	Location(key string) string
}
