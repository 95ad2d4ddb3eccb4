package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter blocks until the caller may proceed or ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// MinInterval enforces a minimum time between calls.
// Concurrent callers wait until the interval has elapsed since the last call,
// or return early if the context is canceled.
type MinInterval struct {
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (m *MinInterval) Wait(ctx context.Context) error {
	if m.Interval <= 0 {
		return ctx.Err()
	}
	for {
		m.mu.Lock()
		wait := time.Until(m.last.Add(m.Interval))
		if wait <= 0 {
			m.last = time.Now()
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// sleep pauses for d unless ctx finishes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
