// Package postgres provides the Postgres-backed cache store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rashadk/media-courier/internal/pipeline"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool backing the cache.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// CacheStore maps source identifiers to artifact paths in a single
// Postgres table with last-writer-wins upsert semantics.
type CacheStore struct {
	pool  pool
	table string
}

// New creates a Postgres-backed CacheStore and ensures its table exists.
func New(ctx context.Context, cfg Config) (*CacheStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("cache.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "cache"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &CacheStore{pool: p, table: table}
	if err := store.init(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing). The table is assumed to exist.
func NewWithPool(p pool, table string) (*CacheStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "cache"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CacheStore{pool: p, table: table}, nil
}

func (s *CacheStore) init(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	url TEXT PRIMARY KEY,
	file_path TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create cache table: %w", err)
	}
	return nil
}

// Lookup returns the entry for the key, if present.
func (s *CacheStore) Lookup(ctx context.Context, key string) (pipeline.CacheEntry, bool, error) {
	query := fmt.Sprintf(`SELECT file_path, created_at FROM %s WHERE url = $1`, s.table)
	var entry pipeline.CacheEntry
	entry.Key = key
	err := s.pool.QueryRow(ctx, query, key).Scan(&entry.Path, &entry.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.CacheEntry{}, false, nil
	}
	if err != nil {
		return pipeline.CacheEntry{}, false, fmt.Errorf("cache lookup: %w", err)
	}
	return entry, true, nil
}

// Put upserts the entry; the last writer wins.
func (s *CacheStore) Put(ctx context.Context, entry pipeline.CacheEntry) error {
	query := fmt.Sprintf(`
INSERT INTO %s (url, file_path, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (url) DO UPDATE SET file_path = EXCLUDED.file_path, created_at = EXCLUDED.created_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, entry.Key, entry.Path, entry.Timestamp); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Evict removes the mapping. Deleting the backing file is the caller's
// responsibility.
func (s *CacheStore) Evict(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE url = $1`, s.table)
	if _, err := s.pool.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("cache evict: %w", err)
	}
	return nil
}

// Stale returns entries older than the cutoff, oldest first.
func (s *CacheStore) Stale(ctx context.Context, cutoff time.Time) ([]pipeline.CacheEntry, error) {
	query := fmt.Sprintf(`SELECT url, file_path, created_at FROM %s WHERE created_at < $1 ORDER BY created_at`, s.table)
	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("cache stale query: %w", err)
	}
	defer rows.Close()

	var entries []pipeline.CacheEntry
	for rows.Next() {
		var entry pipeline.CacheEntry
		if err := rows.Scan(&entry.Key, &entry.Path, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("cache stale scan: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache stale rows: %w", err)
	}
	return entries, nil
}

// Close releases the underlying pool resources.
func (s *CacheStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
