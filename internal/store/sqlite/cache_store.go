// Package sqlite provides an embedded cache store for single-node
// deployments that do not run Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rashadk/media-courier/internal/pipeline"
)

// CacheStore maps source identifiers to artifact paths in a local SQLite
// database file.
type CacheStore struct {
	db *sql.DB
}

// New opens (or creates) the database under dataDir and prepares the
// cache table.
func New(dataDir string) (*CacheStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dataDir, "cache.db"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	// WAL keeps the coordinator and the sweeper from serializing on the
	// whole database file.
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS cache (
		url TEXT PRIMARY KEY,
		file_path TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	return &CacheStore{db: db}, nil
}

// Lookup returns the entry for the key, if present.
func (s *CacheStore) Lookup(ctx context.Context, key string) (pipeline.CacheEntry, bool, error) {
	var (
		path string
		ts   int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT file_path, created_at FROM cache WHERE url = ?`, key).Scan(&path, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.CacheEntry{}, false, nil
	}
	if err != nil {
		return pipeline.CacheEntry{}, false, fmt.Errorf("cache lookup: %w", err)
	}
	return pipeline.CacheEntry{Key: key, Path: path, Timestamp: time.Unix(ts, 0)}, true, nil
}

// Put upserts the entry; the last writer wins.
func (s *CacheStore) Put(ctx context.Context, entry pipeline.CacheEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache (url, file_path, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET file_path = excluded.file_path, created_at = excluded.created_at`,
		entry.Key, entry.Path, entry.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Evict removes the mapping.
func (s *CacheStore) Evict(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE url = ?`, key); err != nil {
		return fmt.Errorf("cache evict: %w", err)
	}
	return nil
}

// Stale returns entries older than the cutoff, oldest first.
func (s *CacheStore) Stale(ctx context.Context, cutoff time.Time) ([]pipeline.CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, file_path, created_at FROM cache WHERE created_at < ? ORDER BY created_at`,
		cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("cache stale query: %w", err)
	}
	defer rows.Close()

	var entries []pipeline.CacheEntry
	for rows.Next() {
		var (
			entry pipeline.CacheEntry
			ts    int64
		)
		if err := rows.Scan(&entry.Key, &entry.Path, &ts); err != nil {
			return nil, fmt.Errorf("cache stale scan: %w", err)
		}
		entry.Timestamp = time.Unix(ts, 0)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache stale rows: %w", err)
	}
	return entries, nil
}

// Close closes the database.
func (s *CacheStore) Close() error {
	return s.db.Close()
}
