package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemBackend stores objects as files under {basePath}/{bucket}/{key}.
// Writes go to a temporary file that is renamed into place, so readers never
// observe a partially written object.
type FilesystemBackend struct {
	basePath string
}

func NewFilesystemBackend(basePath string) *FilesystemBackend {
	return &FilesystemBackend{
		basePath: basePath,
	}
}

// validatePath rejects null bytes, absolute paths and traversal outside the
// bucket.
func validatePath(bucket, key string) error {
	for _, part := range []string{bucket, key} {
		if part == "" {
			return fmt.Errorf("%w: empty bucket or key", ErrInvalidPath)
		}
		if strings.Contains(part, "\x00") {
			return fmt.Errorf("%w: null byte not allowed", ErrInvalidPath)
		}
		if strings.Contains(part, `\`) {
			return fmt.Errorf("%w: backslash not allowed", ErrInvalidPath)
		}
		// Covers Windows drive letters as well.
		if filepath.IsAbs(part) || strings.HasPrefix(part, "/") || (len(part) >= 2 && part[1] == ':') {
			return fmt.Errorf("%w: absolute paths not allowed", ErrInvalidPath)
		}
		clean := filepath.ToSlash(filepath.Clean(part))
		if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(clean, "/../") {
			return fmt.Errorf("%w: path traversal not allowed", ErrInvalidPath)
		}
	}
	if strings.Contains(bucket, "/") {
		return fmt.Errorf("%w: bucket must not contain separators", ErrInvalidPath)
	}
	return nil
}

func (f *FilesystemBackend) buildPath(bucket, key string) (string, error) {
	if err := validatePath(bucket, key); err != nil {
		return "", err
	}

	fullPath := filepath.Clean(filepath.Join(f.basePath, bucket, key))
	bucketDir := filepath.Clean(filepath.Join(f.basePath, bucket))

	if !strings.HasPrefix(fullPath, bucketDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes bucket directory", ErrInvalidPath)
	}

	return fullPath, nil
}

func (f *FilesystemBackend) Put(ctx context.Context, bucket, key string, r io.Reader, _ int64) error {
	fullPath, err := f.buildPath(bucket, key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename succeeded.
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("writing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}

	if err := os.Rename(tmpName, fullPath); err != nil {
		return fmt.Errorf("moving file into place: %w", err)
	}

	return nil
}

// Get returns ErrNotFound if the object doesn't exist. Caller must close the
// returned ReadCloser.
func (f *FilesystemBackend) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	fullPath, err := f.buildPath(bucket, key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening file: %w", err)
	}

	return file, nil
}

// Delete is idempotent: removing a missing object is not an error.
func (f *FilesystemBackend) Delete(ctx context.Context, bucket, key string) error {
	fullPath, err := f.buildPath(bucket, key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing file: %w", err)
	}

	return nil
}

func (f *FilesystemBackend) Exists(ctx context.Context, bucket, key string) (bool, error) {
	fullPath, err := f.buildPath(bucket, key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking file: %w", err)
	}

	return true, nil
}
