// Package retry implements the bounded exponential backoff used for provider submissions.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/JakeFAU/archive-resolver/internal/archive"
)

// ErrExhausted is wrapped around the last cause once every attempt has failed.
var ErrExhausted = errors.New("retries exhausted")

// Policy retries transient failures with a doubling delay.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialPolicy builds a policy. Non-positive values fall back to 3 attempts,
// a 1s base delay and a 30s ceiling.
func NewExponentialPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) Policy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return Policy{maxAttempts: maxAttempts, baseDelay: baseDelay, maxDelay: maxDelay}
}

// MaxAttempts is the total number of tries, including the first.
func (p Policy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether another attempt follows attempt (1-based) failing with err.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.maxAttempts {
		return false
	}
	return archive.Transient(err)
}

// Backoff returns the wait after attempt (1-based): base, 2*base, 4*base, ... capped.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		return p.maxDelay
	}
	return time.Duration(delay)
}

// Delay is Backoff raised to a provider hint such as Retry-After, still capped.
func (p Policy) Delay(attempt int, hint time.Duration) time.Duration {
	d := p.Backoff(attempt)
	if hint > d {
		d = hint
	}
	if d > p.maxDelay {
		d = p.maxDelay
	}
	return d
}

// Exhausted wraps the last failure after attempts tries.
func Exhausted(attempts int, last error) error {
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}

// Wait sleeps on clk for the delay following attempt.
func (p Policy) Wait(ctx context.Context, clk archive.Clock, attempt int, hint time.Duration) error {
	if err := clk.Sleep(ctx, p.Delay(attempt, hint)); err != nil {
		return fmt.Errorf("backoff wait: %w", err)
	}
	return nil
}
