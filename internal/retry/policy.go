// Package retry bounds remote-call retries for tier extractors.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/mhartley/invoice-extract/internal/common"
)

// Policy defines bounded exponential backoff with jitter. Injected into
// remote-call wrappers at construction rather than hand-rolled loops.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before attempt 2
	MaxDelay    time.Duration // backoff ceiling
	Factor      float64       // growth per attempt; <=1 defaults to 2
	Jitter      float64       // +/- fraction of the delay, 0..1
}

// Default mirrors the documented three-attempts-with-backoff behavior.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Factor:      2.0,
		Jitter:      0.2,
	}
}

// Backoff returns the sleep before the given attempt number (attempt 1 has
// no sleep).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	factor := p.Factor
	if factor <= 1 {
		factor = 2
	}
	d := p.BaseDelay
	for i := 2; i < attempt; i++ {
		d = time.Duration(float64(d) * factor)
		if p.MaxDelay > 0 && d > p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) - spread + rand.Float64()*2*spread)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Do runs fn up to MaxAttempts times, sleeping between attempts, honoring
// ctx cancellation. Only transient errors (common.IsTransient) retry;
// anything else returns immediately. After the last attempt the transient
// error is returned wrapped so the tier can downgrade it to a no-match.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if wait := p.Backoff(attempt); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !common.IsTransient(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("retry.attempt_failed",
			"op", op,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", lastErr,
		)
	}
	return fmt.Errorf("%s: %d attempts exhausted: %w", op, attempts, lastErr)
}
