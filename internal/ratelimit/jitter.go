package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"
)

// Jitter sleeps a random duration in [Min, Max) on every Wait. It paces calls
// to an upstream that throttles bursts; it is not a retry or backoff.
type Jitter struct {
	Min, Max time.Duration
	// Float64 returns a value in [0, 1). Defaults to math/rand/v2.
	Float64 func() float64
}

// Delay picks the next pause without sleeping.
func (j Jitter) Delay() time.Duration {
	if j.Max <= j.Min {
		return j.Min
	}
	f := j.Float64
	if f == nil {
		f = rand.Float64
	}
	return j.Min + time.Duration(f()*float64(j.Max-j.Min))
}

func (j Jitter) Wait(ctx context.Context) error {
	return sleep(ctx, j.Delay())
}
