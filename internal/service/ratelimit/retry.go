package ratelimit

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig bounds the backoff loop for transient failures.
type RetryConfig struct {
	MaxAttempts int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
}

// Normalize fills unset fields with usable defaults.
func (c RetryConfig) Normalize() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = 200 * time.Millisecond
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = 10 * c.BackoffMin
	}
	return c
}

// Do runs op up to MaxAttempts times, sleeping an exponentially growing,
// jittered interval between attempts. retryable decides whether an error is
// worth another attempt; a nil retryable retries everything. The last error
// is returned after attempts are exhausted. Context cancellation stops the
// loop immediately.
func Do(ctx context.Context, cfg RetryConfig, retryable func(error) bool, op func(context.Context) error) error {
	cfg = cfg.Normalize()

	var err error
	backoff := cfg.BackoffMin
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		// full jitter: anywhere in (0, backoff]
		sleep := time.Duration(rand.Int63n(int64(backoff))) + time.Millisecond
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > cfg.BackoffMax {
			backoff = cfg.BackoffMax
		}
	}
	return err
}
