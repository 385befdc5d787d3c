package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds the number of simultaneously active pipeline runs.
// Acquire returns a scoped release func guarded by sync.Once, so a permit
// cannot leak or be double-released regardless of the exit path.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64
}

// NewLimiter creates a Limiter admitting at most n concurrent runs.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(n)),
		capacity: int64(n),
	}
}

// Acquire suspends until a permit is free or the context finishes.
// The returned release func is idempotent and must be called on every
// exit path, typically via defer.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() { l.sem.Release(1) })
	}, nil
}

// Capacity reports the configured bound.
func (l *Limiter) Capacity() int {
	return int(l.capacity)
}
