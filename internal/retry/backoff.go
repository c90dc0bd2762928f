// Package retry provides the exponential backoff used when a session
// (re)connects to its peer.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ── Permanent errors ─────────────────────────────────────────────────

// PermanentError wraps an error to signal that retrying will not help,
// e.g. a host string that does not parse.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ── Backoff ──────────────────────────────────────────────────────────

// Backoff retries an operation with exponentially growing pauses.
// The zero value makes a single attempt.
type Backoff struct {
	// Attempts is the total number of tries including the first.
	// Values below 1 mean 1.
	Attempts int
	// Delay is the pause before the second attempt (default 250ms).
	Delay time.Duration
	// MaxDelay caps the pause (default 5s).
	MaxDelay time.Duration
	// Multiplier grows the pause after each retry (default 2.0).
	Multiplier float64
	// Jitter adds ±25% randomisation to each pause.
	Jitter bool
}

// Connect returns the policy used for peer connects with the given
// attempt budget.
func Connect(attempts int) *Backoff {
	return &Backoff{
		Attempts:   attempts,
		Delay:      250 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Do calls fn until it succeeds, returns a permanent error, runs out
// of attempts or ctx is done.  The attempt number passed to fn is
// 1-based.  A permanent error is returned unwrapped.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := b.Delay
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if attempt == attempts {
			break
		}

		wait := delay
		if b.Jitter {
			wait = addJitter(delay)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(wait):
		}

		delay = time.Duration(math.Min(float64(delay)*multiplier, float64(maxDelay)))
	}

	if attempts == 1 {
		return err
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

// addJitter adds ±25% randomisation to a duration.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	return time.Duration(math.Max(float64(d)+delta, float64(time.Millisecond)))
}
