package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rashadk/media-courier/internal/pipeline"
)

func newStore(t *testing.T) *CacheStore {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestCacheStorePutLookup(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	entry := pipeline.CacheEntry{
		Key:       "https://media.example.com/v/42",
		Path:      "/work/run-1_clip.mp4",
		Timestamp: now,
	}
	require.NoError(t, s.Put(ctx, entry))

	got, ok, err := s.Lookup(ctx, entry.Key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entry.Path, got.Path)
	require.True(t, got.Timestamp.Equal(now))
}

func TestCacheStoreLookupMiss(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	_, ok, err := s.Lookup(context.Background(), "https://media.example.com/unknown")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheStorePutUpsertsLastWriterWins(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	key := "https://media.example.com/v/42"

	require.NoError(t, s.Put(ctx, pipeline.CacheEntry{Key: key, Path: "/work/old.mp4", Timestamp: time.Unix(100, 0)}))
	require.NoError(t, s.Put(ctx, pipeline.CacheEntry{Key: key, Path: "/work/new.mp4", Timestamp: time.Unix(200, 0)}))

	got, ok, err := s.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/work/new.mp4", got.Path)
	require.Equal(t, int64(200), got.Timestamp.Unix())
}

func TestCacheStoreEvict(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	key := "https://media.example.com/v/42"

	require.NoError(t, s.Put(ctx, pipeline.CacheEntry{Key: key, Path: "/work/clip.mp4", Timestamp: time.Now()}))
	require.NoError(t, s.Evict(ctx, key))

	_, ok, err := s.Lookup(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	// Evicting a missing key is not an error.
	require.NoError(t, s.Evict(ctx, key))
}

func TestCacheStoreStaleOldestFirst(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.Put(ctx, pipeline.CacheEntry{Key: "new", Path: "/work/new.mp4", Timestamp: base}))
	require.NoError(t, s.Put(ctx, pipeline.CacheEntry{Key: "oldest", Path: "/work/oldest.mp4", Timestamp: base.Add(-48 * time.Hour)}))
	require.NoError(t, s.Put(ctx, pipeline.CacheEntry{Key: "older", Path: "/work/older.mp4", Timestamp: base.Add(-25 * time.Hour)}))

	stale, err := s.Stale(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 2)
	require.Equal(t, "oldest", stale[0].Key)
	require.Equal(t, "older", stale[1].Key)
}
