package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression names the codec applied to stored objects.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// CompressedBackend compresses objects on Put and decompresses them on Get.
// Objects written without compression cannot be read through it.
type CompressedBackend struct {
	backend     Backend
	compression Compression
}

func NewCompressedBackend(backend Backend, compression Compression) (*CompressedBackend, error) {
	switch compression {
	case CompressionNone, CompressionGzip, CompressionZstd:
	default:
		return nil, fmt.Errorf("%w: unsupported compression %q", ErrInvalidConfig, compression)
	}
	return &CompressedBackend{
		backend:     backend,
		compression: compression,
	}, nil
}

func (c *CompressedBackend) Put(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	if c.compression == CompressionNone {
		return c.backend.Put(ctx, bucket, key, r, size)
	}

	pr, pw := io.Pipe()

	go func() {
		pw.CloseWithError(c.compress(pw, r))
	}()

	// The compressed size is unknown up front.
	err := c.backend.Put(ctx, bucket, key, pr, -1)
	pr.CloseWithError(err)
	return err
}

func (c *CompressedBackend) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	rc, err := c.backend.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	if c.compression == CompressionNone {
		return rc, nil
	}

	pr, pw := io.Pipe()

	go func() {
		err := c.decompress(pw, rc)
		rc.Close()
		pw.CloseWithError(err)
	}()

	return pr, nil
}

func (c *CompressedBackend) Delete(ctx context.Context, bucket, key string) error {
	return c.backend.Delete(ctx, bucket, key)
}

func (c *CompressedBackend) Exists(ctx context.Context, bucket, key string) (bool, error) {
	return c.backend.Exists(ctx, bucket, key)
}

func (c *CompressedBackend) compress(w io.Writer, r io.Reader) error {
	var (
		cw  io.WriteCloser
		err error
	)
	switch c.compression {
	case CompressionGzip:
		cw = gzip.NewWriter(w)
	case CompressionZstd:
		cw, err = zstd.NewWriter(w)
		if err != nil {
			return err
		}
	}

	if _, err := io.Copy(cw, r); err != nil {
		cw.Close()
		return err
	}
	return cw.Close()
}

func (c *CompressedBackend) decompress(w io.Writer, r io.Reader) error {
	switch c.compression {
	case CompressionGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return err
		}
		defer gr.Close()
		_, err = io.Copy(w, gr)
		return err
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return err
		}
		defer zr.Close()
		_, err = io.Copy(w, zr)
		return err
	}
	return fmt.Errorf("unsupported compression type: %s", c.compression)
}
