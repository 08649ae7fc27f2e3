// Package retry carries the single retry policy shared by the account probe
// and the membership oracle callers: bounded attempts, capped exponential
// backoff, and a longer pause on rate limits.
package retry

import (
	"context"
	"time"

	"numrelay-go/internal/apperrors"

	log "github.com/sirupsen/logrus"
)

// Policy describes how many times an operation may be attempted and how long
// to wait between attempts.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
	// RateLimitPause overrides the computed backoff when the last failure
	// was an upstream rate limit.
	RateLimitPause time.Duration
}

// DefaultPolicy mirrors the original bot's three-attempt loop with a short
// pause on rate limits.
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	Interval:       2 * time.Second,
	MaxInterval:    30 * time.Second,
	Multiplier:     2.0,
	RateLimitPause: 5 * time.Second,
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.Interval <= 0 {
		p.Interval = DefaultPolicy.Interval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultPolicy.MaxInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultPolicy.Multiplier
	}
	if p.RateLimitPause <= 0 {
		p.RateLimitPause = DefaultPolicy.RateLimitPause
	}
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. The last error is returned unwrapped so callers can
// classify it.
func (p Policy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	p = p.normalized()

	var lastErr error
	delay := p.Interval

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !apperrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := delay
		if apperrors.IsRateLimited(lastErr) {
			wait = p.RateLimitPause
		}
		log.WithError(lastErr).WithFields(log.Fields{
			"op":      name,
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
		}).Debug("retrying after failure")

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.MaxInterval {
			delay = p.MaxInterval
		}
	}
	return lastErr
}
