package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/watzon/markguard/internal/config"
)

func s3TestConfig(t *testing.T) config.S3Config {
	t.Helper()

	endpoint := os.Getenv("S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("S3_ENDPOINT not set, skipping S3 integration tests")
	}

	return config.S3Config{
		Endpoint:        endpoint,
		Region:          os.Getenv("S3_REGION"),
		AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		BucketPrefix:    "markguard-test-",
		ForcePathStyle:  true,
	}
}

func TestS3Backend(t *testing.T) {
	backend, err := NewS3Backend(context.Background(), s3TestConfig(t))
	if err != nil {
		t.Fatalf("NewS3Backend failed: %v", err)
	}

	ctx := context.Background()
	content := []byte("<p>Hello, S3!</p>")

	if err := backend.Put(ctx, "publications", "doc.html", bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rc, err := backend.Get(ctx, "publications", "doc.html")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("expected %q, got %q", content, got)
	}

	if err := backend.Delete(ctx, "publications", "doc.html"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	exists, err := backend.Exists(ctx, "publications", "doc.html")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected object to be gone after delete")
	}

	if _, err := backend.Get(ctx, "publications", "doc.html"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestS3BackendUnknownSize(t *testing.T) {
	backend, err := NewS3Backend(context.Background(), s3TestConfig(t))
	if err != nil {
		t.Fatalf("NewS3Backend failed: %v", err)
	}

	ctx := context.Background()
	content := bytes.Repeat([]byte("x"), partSize+1024)

	if err := backend.Put(ctx, "publications", "large.html", bytes.NewReader(content), -1); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	defer backend.Delete(ctx, "publications", "large.html")

	rc, err := backend.Get(ctx, "publications", "large.html")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != len(content) {
		t.Errorf("expected %d bytes, got %d", len(content), len(got))
	}
}

func TestNewS3Backend_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.S3Config
	}{
		{"missing region", config.S3Config{AccessKeyID: "a", SecretAccessKey: "b"}},
		{"missing keys", config.S3Config{Region: "us-east-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewS3Backend(context.Background(), tt.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
