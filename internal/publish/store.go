package publish

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/watzon/markguard/internal/database"
	"github.com/watzon/markguard/internal/metrics"
	"github.com/watzon/markguard/internal/storage"
)

var ErrNotFound = errors.New("publication not found")

// Publication is the index record for one published document. The HTML
// itself lives in the storage backend under StorageKey.
type Publication struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string  `json:"tags" yaml:"tags"`
	StorageKey  string    `json:"-" yaml:"-"`
	Size        int64     `json:"size" yaml:"size"`
	Strategy    string    `json:"strategy" yaml:"strategy"`
	Removed     int       `json:"removed" yaml:"removed"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Store keeps publication bodies in a storage.Backend and their metadata in
// the SQLite index.
type Store struct {
	db      *database.DB
	backend storage.Backend
	bucket  string
	now     func() time.Time
}

func NewStore(db *database.DB, backend storage.Backend, bucket string) *Store {
	return &Store{
		db:      db,
		backend: backend,
		bucket:  bucket,
		now:     time.Now,
	}
}

// Create stores body and indexes p. ID, StorageKey, Size and CreatedAt are
// assigned by the store.
func (s *Store) Create(ctx context.Context, p *Publication, body string) error {
	p.ID = uuid.New().String()
	p.StorageKey = p.ID + ".html"
	p.Size = int64(len(body))
	p.CreatedAt = s.now().UTC()
	if p.Tags == nil {
		p.Tags = []string{}
	}

	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}

	if err := s.backend.Put(ctx, s.bucket, p.StorageKey, bytes.NewReader([]byte(body)), p.Size); err != nil {
		return fmt.Errorf("storing publication body: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO publications (id, title, description, tags, storage_key, size, strategy, removed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		p.Title,
		p.Description,
		string(tags),
		p.StorageKey,
		p.Size,
		p.Strategy,
		p.Removed,
		database.FormatTime(p.CreatedAt),
	)
	if err != nil {
		if delErr := s.backend.Delete(ctx, s.bucket, p.StorageKey); delErr != nil {
			log.Warn().Err(delErr).Str("key", p.StorageKey).Msg("Failed to remove orphaned publication body")
		}
		return fmt.Errorf("indexing publication: %w", database.ClassifyError(err))
	}

	metrics.RecordPublication("create")
	return nil
}

const selectColumns = `id, title, description, tags, storage_key, size, strategy, removed, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPublication(row rowScanner) (*Publication, error) {
	var (
		p         Publication
		tags      string
		createdAt string
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &tags, &p.StorageKey, &p.Size, &p.Strategy, &p.Removed, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return nil, fmt.Errorf("unmarshaling tags: %w", err)
	}
	t, err := database.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = t
	return &p, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Publication, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM publications WHERE id = ?`, id)
	p, err := scanPublication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting publication: %w", err)
	}
	return p, nil
}

// GetContent returns the stored HTML of a publication. The caller closes the
// reader.
func (s *Store) GetContent(ctx context.Context, id string) (*Publication, io.ReadCloser, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.backend.Get(ctx, s.bucket, p.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading publication body: %w", err)
	}
	return p, rc, nil
}

// List returns publications newest first, and the total count.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*Publication, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM publications`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting publications: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM publications
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing publications: %w", err)
	}
	defer rows.Close()

	pubs := make([]*Publication, 0, limit)
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning publication: %w", err)
		}
		pubs = append(pubs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating publications: %w", err)
	}

	return pubs, total, nil
}

// Delete removes the index entry, then the body.
func (s *Store) Delete(ctx context.Context, id string) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM publications WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting publication: %w", err)
	}

	if err := s.backend.Delete(ctx, s.bucket, p.StorageKey); err != nil {
		return fmt.Errorf("deleting publication body: %w", err)
	}

	metrics.RecordPublication("delete")
	return nil
}

// PurgeOlderThan deletes every publication created before cutoff and
// returns how many were removed.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var keys []string

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		ts := database.FormatTime(cutoff)

		rows, err := tx.QueryContext(ctx, `SELECT storage_key FROM publications WHERE created_at < ?`, ts)
		if err != nil {
			return err
		}
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				rows.Close()
				return err
			}
			keys = append(keys, key)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM publications WHERE created_at < ?`, ts)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("purging publications: %w", err)
	}

	for _, key := range keys {
		if err := s.backend.Delete(ctx, s.bucket, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to delete expired publication body")
			continue
		}
		metrics.RecordPublication("purge")
	}

	return len(keys), nil
}
