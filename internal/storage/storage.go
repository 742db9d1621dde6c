// Package storage holds attachment bytes in an object store. Two
// backends are supported: MinIO (self-hosted) and Google Cloud Storage.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/tcmhub/apiserver/config"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// New constructs the backend selected by config, or nil when the
// backend is "none" (attachments disabled).
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "minio":
		return NewMinioStorage(cfg.Minio)
	case "gcs":
		return NewGCSStorage(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
