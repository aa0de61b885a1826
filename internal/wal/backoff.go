package wal

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dreamware/taograph/internal/config"
)

// specBackoff implements backoff.BackOff with the exact retry schedule
// spec.md §4.7 names: delay = min(base_delay * 2^attempt, max_delay),
// giving up after maxAttempts (NextBackOff returns backoff.Stop). The
// compensation worker in internal/consistency drives a plain
// backoff.ExponentialBackOff through backoff.Retry; this package needs
// the exact doubling schedule instead, so it implements the same
// interface directly rather than reaching for the library's own
// multiplier/jitter knobs.
type specBackoff struct {
	base        time.Duration
	max         time.Duration
	attempt     int
	maxAttempts int
}

var _ backoff.BackOff = (*specBackoff)(nil)

func newSpecBackoff(cfg config.WAL) *specBackoff {
	return &specBackoff{base: cfg.BaseRetryDelay, max: cfg.MaxRetryDelay, maxAttempts: cfg.MaxRetryAttempts}
}

func (b *specBackoff) NextBackOff() time.Duration {
	if b.attempt >= b.maxAttempts {
		return backoff.Stop
	}
	delay := b.base << uint(b.attempt)
	if delay <= 0 || delay > b.max {
		delay = b.max
	}
	b.attempt++
	return delay
}

func (b *specBackoff) Reset() { b.attempt = 0 }
