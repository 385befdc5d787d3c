package pipeline

import "sync/atomic"

// Stats holds the process-wide run counters. Monotonic; reset only by
// process restart.
type Stats struct {
	completed atomic.Uint64
	failed    atomic.Uint64
}

// NewStats creates zeroed counters.
func NewStats() *Stats {
	return &Stats{}
}

// RecordCompleted increments the completed counter.
func (s *Stats) RecordCompleted() {
	s.completed.Add(1)
}

// RecordFailed increments the failed counter.
func (s *Stats) RecordFailed() {
	s.failed.Add(1)
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() (completed, failed uint64) {
	return s.completed.Load(), s.failed.Load()
}
