package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rashadk/media-courier/internal/pipeline"
	memorystore "github.com/rashadk/media-courier/internal/store/memory"
)

type fixedClock struct{ now time.Time }

func (f fixedClock) Now() time.Time { return f.now }

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o600))
	return path
}

func TestSweepWithinBudgetDoesNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Unix(1_700_000_000, 0)
	cache := memorystore.New()
	old := writeFile(t, dir, "old.mp4", 100)
	require.NoError(t, cache.Put(context.Background(), pipeline.CacheEntry{
		Key: "old", Path: old, Timestamp: now.Add(-48 * time.Hour),
	}))

	s := New(Config{Dir: dir, Budget: 1 << 20, MaxAge: 24 * time.Hour},
		cache, nil, fixedClock{now: now}, zap.NewNop())

	require.NoError(t, s.Sweep(context.Background()))
	require.FileExists(t, old)
	require.Equal(t, 1, cache.Len())
}

func TestSweepEvictsStaleEntriesOverBudget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Unix(1_700_000_000, 0)
	cache := memorystore.New()
	ctx := context.Background()

	old := writeFile(t, dir, "old.mp4", 600)
	fresh := writeFile(t, dir, "fresh.mp4", 600)
	require.NoError(t, cache.Put(ctx, pipeline.CacheEntry{
		Key: "old", Path: old, Timestamp: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, cache.Put(ctx, pipeline.CacheEntry{
		Key: "fresh", Path: fresh, Timestamp: now.Add(-time.Hour),
	}))

	s := New(Config{Dir: dir, Budget: 1000, MaxAge: 24 * time.Hour},
		cache, nil, fixedClock{now: now}, zap.NewNop())

	require.NoError(t, s.Sweep(ctx))

	// Only the entry older than the retention window goes.
	require.NoFileExists(t, old)
	require.FileExists(t, fresh)
	_, ok, err := cache.Lookup(ctx, "old")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = cache.Lookup(ctx, "fresh")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSweepSkipsPathsOwnedByActiveRuns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Unix(1_700_000_000, 0)
	cache := memorystore.New()
	ctx := context.Background()

	inUse := writeFile(t, dir, "in-use.mp4", 2000)
	require.NoError(t, cache.Put(ctx, pipeline.CacheEntry{
		Key: "in-use", Path: inUse, Timestamp: now.Add(-48 * time.Hour),
	}))

	tasks := pipeline.NewActiveTasks()
	require.NoError(t, tasks.Register("user-1", func() {}))
	tasks.ClaimPath("user-1", inUse)

	s := New(Config{Dir: dir, Budget: 1000, MaxAge: 24 * time.Hour},
		cache, tasks.Owns, fixedClock{now: now}, zap.NewNop())

	require.NoError(t, s.Sweep(ctx))
	require.FileExists(t, inUse)
	require.Equal(t, 1, cache.Len())

	// Once the run releases the path the next sweep evicts it.
	tasks.Release("user-1")
	require.NoError(t, s.Sweep(ctx))
	require.NoFileExists(t, inUse)
	require.Zero(t, cache.Len())
}

func TestSweepHealsDanglingEntry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Unix(1_700_000_000, 0)
	cache := memorystore.New()
	ctx := context.Background()

	// Row points at a file that no longer exists; unrelated bytes keep the
	// directory over budget.
	writeFile(t, dir, "unrelated.bin", 2000)
	require.NoError(t, cache.Put(ctx, pipeline.CacheEntry{
		Key:       "gone",
		Path:      filepath.Join(dir, "gone.mp4"),
		Timestamp: now.Add(-48 * time.Hour),
	}))

	s := New(Config{Dir: dir, Budget: 1000, MaxAge: 24 * time.Hour},
		cache, nil, fixedClock{now: now}, zap.NewNop())

	require.NoError(t, s.Sweep(ctx))
	require.Zero(t, cache.Len(), "dangling rows are evicted")
}

func TestSweepMissingDirCountsAsEmpty(t *testing.T) {
	t.Parallel()

	cache := memorystore.New()
	s := New(Config{Dir: filepath.Join(t.TempDir(), "never-created"), Budget: 1, MaxAge: time.Hour},
		cache, nil, fixedClock{now: time.Now()}, zap.NewNop())
	require.NoError(t, s.Sweep(context.Background()))
}

func TestSweeperStartStop(t *testing.T) {
	t.Parallel()

	cache := memorystore.New()
	s := New(Config{Dir: t.TempDir(), Budget: 1 << 20, MaxAge: time.Hour, Schedule: "@every 1h"},
		cache, nil, fixedClock{now: time.Now()}, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestSweeperStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	cache := memorystore.New()
	s := New(Config{Dir: t.TempDir(), Budget: 1, MaxAge: time.Hour, Schedule: "not-a-schedule"},
		cache, nil, fixedClock{now: time.Now()}, zap.NewNop())
	require.Error(t, s.Start(context.Background()))
}
