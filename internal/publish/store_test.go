package publish

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/markguard/internal/config"
	"github.com/watzon/markguard/internal/database"
	"github.com/watzon/markguard/internal/storage"
)

func newTestStore(t *testing.T) (*Store, *storage.FilesystemBackend) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Path:         filepath.Join(dir, "index.db"),
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	backend := storage.NewFilesystemBackend(filepath.Join(dir, "objects"))
	return NewStore(db, backend, "publications"), backend
}

func TestStore_CreateAndGet(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	p := &Publication{Title: "Hello", Description: "greeting", Tags: []string{"a", "b"}, Strategy: "tree", Removed: 3}
	require.NoError(t, store.Create(ctx, p, "<p>hello</p>"))

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, p.ID+".html", p.StorageKey)
	assert.Equal(t, int64(len("<p>hello</p>")), p.Size)
	assert.False(t, p.CreatedAt.IsZero())

	exists, err := backend.Exists(ctx, "publications", p.StorageKey)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, "greeting", got.Description)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	assert.Equal(t, "tree", got.Strategy)
	assert.Equal(t, 3, got.Removed)
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))
}

func TestStore_GetContent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	p := &Publication{Title: "Body"}
	require.NoError(t, store.Create(ctx, p, "<h3>Body</h3>"))

	got, rc, err := store.GetContent(ctx, p.ID)
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "<h3>Body</h3>", string(body))
	assert.Equal(t, p.ID, got.ID)
}

func TestStore_NotFound(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, _, err = store.GetContent(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "missing"), ErrNotFound)
}

func TestStore_List(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	for i, title := range []string{"first", "second", "third"} {
		at := base.Add(time.Duration(i) * time.Hour)
		store.now = func() time.Time { return at }
		require.NoError(t, store.Create(ctx, &Publication{Title: title}, "<p>"+title+"</p>"))
	}

	pubs, total, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, pubs, 2)
	assert.Equal(t, "third", pubs[0].Title)
	assert.Equal(t, "second", pubs[1].Title)

	pubs, _, err = store.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, pubs, 1)
	assert.Equal(t, "first", pubs[0].Title)
	assert.Equal(t, []string{}, pubs[0].Tags)
}

func TestStore_Delete(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	p := &Publication{Title: "gone"}
	require.NoError(t, store.Create(ctx, p, "<p>gone</p>"))
	require.NoError(t, store.Delete(ctx, p.ID))

	_, err := store.Get(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := backend.Exists(ctx, "publications", p.StorageKey)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_PurgeOlderThan(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	old := &Publication{Title: "old"}
	store.now = func() time.Time { return now.Add(-48 * time.Hour) }
	require.NoError(t, store.Create(ctx, old, "<p>old</p>"))

	fresh := &Publication{Title: "fresh"}
	store.now = func() time.Time { return now.Add(-time.Hour) }
	require.NoError(t, store.Create(ctx, fresh, "<p>fresh</p>"))

	n, err := store.PurgeOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := backend.Exists(ctx, "publications", old.StorageKey)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Get(ctx, fresh.ID)
	assert.NoError(t, err)

	n, err = store.PurgeOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}
