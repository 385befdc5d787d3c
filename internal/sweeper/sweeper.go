// Package sweeper enforces the artifact storage budget by evicting aged
// cache entries and deleting their backing files on a fixed schedule.
package sweeper

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/rashadk/media-courier/internal/pipeline"
)

var sweeperEvictions = promauto.NewCounter(prometheus.CounterOpts{
	Name: "courier_sweeper_evictions_total",
	Help: "Cache entries evicted by the retention sweeper.",
})

// Config carries the retention policy.
type Config struct {
	// Dir is the artifact storage area whose total size is budgeted.
	Dir string
	// Budget is the on-disk size above which eviction starts.
	Budget int64
	// MaxAge is the minimum entry age for eviction eligibility.
	MaxAge time.Duration
	// Schedule is a cron spec, e.g. "@every 1h".
	Schedule string
}

// Sweeper reconciles the cache store with on-disk storage.
type Sweeper struct {
	cfg    Config
	cache  pipeline.CacheStore
	owned  func(path string) bool
	clock  pipeline.Clock
	cron   *cron.Cron
	logger *zap.Logger
}

// New constructs a Sweeper. owned reports whether an active run currently
// owns a path; such entries are skipped rather than risk deleting a file
// in use.
func New(cfg Config, cache pipeline.CacheStore, owned func(string) bool, clock pipeline.Clock, logger *zap.Logger) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1h"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		cfg:    cfg,
		cache:  cache,
		owned:  owned,
		clock:  clock,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start schedules periodic sweeps until Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs one reconciliation pass. Eviction per entry deletes the
// backing file first and the row second; a crash in between leaves a
// dangling row that self-heals on the next lookup.
func (s *Sweeper) Sweep(ctx context.Context) error {
	total, err := dirSize(s.cfg.Dir)
	if err != nil {
		return err
	}
	if total <= s.cfg.Budget {
		s.logger.Debug("storage within budget", zap.Int64("bytes", total))
		return nil
	}

	cutoff := s.clock.Now().Add(-s.cfg.MaxAge)
	entries, err := s.cache.Stale(ctx, cutoff)
	if err != nil {
		return err
	}

	evicted := 0
	var freed int64
	for _, entry := range entries {
		if s.owned != nil && s.owned(entry.Path) {
			s.logger.Debug("skipping entry owned by an active run", zap.String("path", entry.Path))
			continue
		}
		if info, statErr := os.Stat(entry.Path); statErr == nil {
			freed += info.Size()
		}
		if rmErr := os.Remove(entry.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Warn("failed to delete evicted artifact", zap.String("path", entry.Path), zap.Error(rmErr))
			continue
		}
		if err := s.cache.Evict(ctx, entry.Key); err != nil {
			s.logger.Warn("failed to evict cache row", zap.String("key", entry.Key), zap.Error(err))
			continue
		}
		evicted++
		sweeperEvictions.Inc()
	}
	s.logger.Info("sweep complete",
		zap.Int64("total_bytes", total),
		zap.Int64("freed_bytes", freed),
		zap.Int("evicted", evicted))
	return nil
}

// dirSize totals the regular files under dir. A missing directory counts
// as empty.
func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}
	return total, nil
}
