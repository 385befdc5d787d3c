package pipeline

import (
	"context"
	"time"
)

// RetryPolicy applies a bounded fixed-delay retry to an operation.
// Retryable decides per error; a nil predicate retries everything except
// context cancellation.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Retryable   func(error) bool
}

// Do runs op up to MaxAttempts times, sleeping Delay between attempts.
// The context aborts both the sleep and further attempts; the last error
// is returned unwrapped so the caller's taxonomy survives.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if !p.shouldRetry(err) || attempt == attempts {
			return err
		}
		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func (p RetryPolicy) shouldRetry(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}
