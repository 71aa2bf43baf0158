// Package sqlite persists the classification cache in a local SQLite database.
//
// The whole table is loaded into memory on Open; every Put is a committed
// insert before it returns, so a crash never loses an acknowledged label.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS classifications (
	fingerprint TEXT PRIMARY KEY,
	label       TEXT NOT NULL,
	created_at  DATETIME NOT NULL
)`

// Store is a durable fingerprint to label mapping.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]string
}

// Open creates or opens the cache database at path and loads every entry.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("cache path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	// WAL plus full sync keeps committed inserts across crashes.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	// One writer connection avoids SQLITE_BUSY between workers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	s := &Store{
		db:      db,
		path:    path,
		logger:  logger,
		entries: make(map[string]string),
	}
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("classification cache loaded",
		zap.String("path", path),
		zap.Int("entries", len(s.entries)),
	)
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT fingerprint, label FROM classifications")
	if err != nil {
		return fmt.Errorf("loading cache: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var fp, label string
		if err := rows.Scan(&fp, &label); err != nil {
			return fmt.Errorf("scanning cache row: %w", err)
		}
		s.entries[fp] = label
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating cache rows: %w", err)
	}
	return nil
}

// Get returns the cached label for fingerprint.
func (s *Store) Get(_ context.Context, fingerprint string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	label, ok := s.entries[fingerprint]
	return label, ok, nil
}

// Put durably records fingerprint -> label. Existing entries are overwritten.
func (s *Store) Put(ctx context.Context, fingerprint, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO classifications (fingerprint, label, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET label = excluded.label`,
		fingerprint, label, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	s.entries[fingerprint] = label
	return nil
}

// Len reports the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing cache database: %w", err)
	}
	return nil
}
