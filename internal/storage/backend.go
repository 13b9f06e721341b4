// Package storage persists published documents as objects addressed by
// bucket and key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/watzon/markguard/internal/config"
)

var (
	ErrNotFound      = errors.New("object not found")
	ErrInvalidConfig = errors.New("invalid backend configuration")
	ErrInvalidPath   = errors.New("invalid object path")
)

type Backend interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, key string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// NewBackend builds the backend selected by cfg.Type and wraps it for
// compression when cfg.Compression is set.
func NewBackend(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	var backend Backend

	switch cfg.Type {
	case "filesystem":
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: filesystem path is required", ErrInvalidConfig)
		}
		backend = NewFilesystemBackend(cfg.Path)
	case "s3":
		s3, err := NewS3Backend(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		backend = s3
	default:
		return nil, fmt.Errorf("%w: unknown backend type %q", ErrInvalidConfig, cfg.Type)
	}

	if cfg.Compression == "" {
		return backend, nil
	}
	compressed, err := NewCompressedBackend(backend, Compression(cfg.Compression))
	if err != nil {
		return nil, err
	}
	return compressed, nil
}
