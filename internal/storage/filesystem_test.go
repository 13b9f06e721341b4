package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestFilesystemBackend_PutGet(t *testing.T) {
	tmpDir := t.TempDir()
	backend := NewFilesystemBackend(tmpDir)
	ctx := context.Background()

	data := []byte("<h1>hello</h1>")
	if err := backend.Put(ctx, "publications", "doc.html", bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	expectedPath := filepath.Join(tmpDir, "publications", "doc.html")
	if _, err := os.Stat(expectedPath); err != nil {
		t.Fatalf("File not created at expected path %s: %v", expectedPath, err)
	}

	rc, err := backend.Get(ctx, "publications", "doc.html")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer rc.Close()

	retrieved, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	if !bytes.Equal(data, retrieved) {
		t.Errorf("Retrieved data doesn't match. Got %q, want %q", retrieved, data)
	}
}

func TestFilesystemBackend_Overwrite(t *testing.T) {
	tmpDir := t.TempDir()
	backend := NewFilesystemBackend(tmpDir)
	ctx := context.Background()

	for _, body := range []string{"first version", "second"} {
		if err := backend.Put(ctx, "publications", "doc.html", bytes.NewReader([]byte(body)), int64(len(body))); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	got, err := os.ReadFile(filepath.Join(tmpDir, "publications", "doc.html"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("expected overwritten content, got %q", got)
	}

	entries, err := os.ReadDir(filepath.Join(tmpDir, "publications"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected no leftover temp files, found %d entries", len(entries))
	}
}

func TestFilesystemBackend_DeleteAndExists(t *testing.T) {
	backend := NewFilesystemBackend(t.TempDir())
	ctx := context.Background()

	data := []byte("delete me")
	if err := backend.Put(ctx, "publications", "doc.html", bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exists, err := backend.Exists(ctx, "publications", "doc.html")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v; want true, nil", exists, err)
	}

	if err := backend.Delete(ctx, "publications", "doc.html"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	exists, err = backend.Exists(ctx, "publications", "doc.html")
	if err != nil || exists {
		t.Fatalf("Exists = %v, %v; want false, nil", exists, err)
	}

	if err := backend.Delete(ctx, "publications", "doc.html"); err != nil {
		t.Errorf("Delete of a missing object should succeed, got: %v", err)
	}
}

func TestFilesystemBackend_GetNotFound(t *testing.T) {
	backend := NewFilesystemBackend(t.TempDir())

	_, err := backend.Get(context.Background(), "publications", "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get should return ErrNotFound for nonexistent file, got: %v", err)
	}
}

func TestFilesystemBackend_PathTraversal(t *testing.T) {
	backend := NewFilesystemBackend(t.TempDir())
	ctx := context.Background()
	data := []byte("malicious")

	tests := []struct {
		name   string
		bucket string
		key    string
	}{
		{"parent directory unix", "bucket", "../etc/passwd"},
		{"parent directory windows", "bucket", "..\\windows\\system32"},
		{"absolute path unix", "bucket", "/etc/passwd"},
		{"absolute path windows", "bucket", "C:\\windows\\system32"},
		{"null byte", "bucket", "test\x00.txt"},
		{"bucket traversal", "../etc", "passwd"},
		{"nested bucket", "a/b", "passwd"},
		{"double dot", "bucket", "foo/../../../etc/passwd"},
		{"empty key", "bucket", ""},
		{"dot key", "bucket", "."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := backend.Put(ctx, tt.bucket, tt.key, bytes.NewReader(data), int64(len(data)))
			if !errors.Is(err, ErrInvalidPath) {
				t.Errorf("Put should reject bucket=%q key=%q with ErrInvalidPath, got: %v", tt.bucket, tt.key, err)
			}
		})
	}
}

func TestFilesystemBackend_CanceledContext(t *testing.T) {
	backend := NewFilesystemBackend(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := backend.Put(ctx, "publications", "doc.html", bytes.NewReader([]byte("x")), 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFilesystemBackend_ConcurrentAccess(t *testing.T) {
	backend := NewFilesystemBackend(t.TempDir())
	ctx := context.Background()

	const numGoroutines = 10
	const numOpsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			for j := 0; j < numOpsPerGoroutine; j++ {
				key := fmt.Sprintf("goroutine/%d/doc-%d.html", id, j)
				data := []byte("concurrent test data")

				if err := backend.Put(ctx, "publications", key, bytes.NewReader(data), int64(len(data))); err != nil {
					t.Errorf("Concurrent Put failed: %v", err)
					return
				}

				rc, err := backend.Get(ctx, "publications", key)
				if err != nil {
					t.Errorf("Concurrent Get failed: %v", err)
					return
				}
				rc.Close()

				if err := backend.Delete(ctx, "publications", key); err != nil {
					t.Errorf("Concurrent Delete failed: %v", err)
					return
				}
			}
		}(i)
	}

	wg.Wait()
}

func TestFilesystemBackend_NestedPaths(t *testing.T) {
	backend := NewFilesystemBackend(t.TempDir())
	ctx := context.Background()

	data := []byte("nested file")
	if err := backend.Put(ctx, "publications", "2026/10/doc.html", bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("Put with nested path failed: %v", err)
	}

	rc, err := backend.Get(ctx, "publications", "2026/10/doc.html")
	if err != nil {
		t.Fatalf("Get nested file failed: %v", err)
	}
	defer rc.Close()

	retrieved, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	if !bytes.Equal(data, retrieved) {
		t.Errorf("Retrieved data doesn't match. Got %q, want %q", retrieved, data)
	}
}
