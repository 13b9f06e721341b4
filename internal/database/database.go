// Package database opens the SQLite index that records publications.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/watzon/markguard/internal/config"
	"github.com/watzon/markguard/internal/database/migrations"
	"github.com/watzon/markguard/internal/metrics"
)

type DB struct {
	*sql.DB
	cfg    config.DatabaseConfig
	mu     sync.RWMutex
	closed bool
}

// Open opens the database at cfg.Path, applies pragmas and runs the
// embedded migrations. ":memory:" opens a private in-memory database.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	if err := ensureDir(cfg.Path); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 || cfg.Path == ":memory:" {
		// Every connection to ":memory:" is a separate database.
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)

	db := &DB{
		DB:  sqlDB,
		cfg: cfg,
	}

	if err := db.configure(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("configuring database: %w", err)
	}

	if err := migrations.Run(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	log.Debug().Str("path", cfg.Path).Bool("wal", cfg.WALMode).Msg("Database opened")

	return db, nil
}

func ensureDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (db *DB) configure(ctx context.Context) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", db.cfg.BusyTimeout.Milliseconds()),
	}

	if db.cfg.WALMode && db.cfg.Path != ":memory:" {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		)
	}

	if db.cfg.CacheSize != 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size = %d", db.cfg.CacheSize))
	}

	pragmas = append(pragmas, "PRAGMA temp_store = MEMORY")

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("executing %q: %w", pragma, err)
		}
	}

	return nil
}

// Close checkpoints the WAL and closes the pool. It is safe to call twice.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	if db.cfg.WALMode {
		_, _ = db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}

	return db.DB.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

// ReportStats publishes the connection pool size to the metrics registry.
func (db *DB) ReportStats() {
	metrics.UpdateDBStats(db.Stats().OpenConnections)
}

// Transaction runs fn inside a transaction, rolling back when fn returns an
// error or panics.
func (db *DB) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t the way timestamps are stored.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime reads a stored timestamp. SQLite's own datetime() format is
// accepted as well.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
