// Package memory contains an in-memory cache store for tests and
// ephemeral deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rashadk/media-courier/internal/pipeline"
)

// CacheStore keeps entries in a mutex-guarded map.
type CacheStore struct {
	mu      sync.RWMutex
	entries map[string]pipeline.CacheEntry
}

// New returns an empty CacheStore.
func New() *CacheStore {
	return &CacheStore{entries: make(map[string]pipeline.CacheEntry)}
}

// Lookup returns the entry for the key, if present.
func (s *CacheStore) Lookup(_ context.Context, key string) (pipeline.CacheEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok, nil
}

// Put upserts the entry; the last writer wins.
func (s *CacheStore) Put(_ context.Context, entry pipeline.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

// Evict removes the mapping.
func (s *CacheStore) Evict(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Stale returns entries older than the cutoff, oldest first.
func (s *CacheStore) Stale(_ context.Context, cutoff time.Time) ([]pipeline.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []pipeline.CacheEntry
	for _, entry := range s.entries {
		if entry.Timestamp.Before(cutoff) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// Close is a no-op.
func (s *CacheStore) Close() error { return nil }

// Len reports the number of stored entries.
func (s *CacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
