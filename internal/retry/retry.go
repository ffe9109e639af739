package retry

import (
	"context"
	"fmt"
	"time"
)

type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration // wait before the second attempt
	MaxDelay    time.Duration // cap for exponential backoff, 0 = uncapped
	Backoff     bool          // Exponential backoff

	// Retryable reports whether err is worth another attempt. Nil retries everything.
	Retryable func(err error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// NonRetryableError marks an error returned because Retryable rejected it.
type NonRetryableError struct {
	Attempt int
	Err     error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("attempt %d: %v", e.Attempt, e.Err)
}

func (e *NonRetryableError) Unwrap() error { return e.Err }

// BackoffDelay returns the wait after the given failed attempt (1-based).
func (c RetryConfig) BackoffDelay(attempt int) time.Duration {
	if !c.Backoff || attempt <= 1 {
		return c.capped(c.Delay)
	}
	delay := c.Delay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if c.MaxDelay > 0 && delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return c.capped(delay)
}

func (c RetryConfig) capped(d time.Duration) time.Duration {
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// WithRetry runs fn until it succeeds, the attempts run out, the error is not retryable,
// or ctx is done.
func WithRetry(ctx context.Context, config RetryConfig, fn func() error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err

			if config.Retryable != nil && !config.Retryable(err) {
				return &NonRetryableError{Attempt: attempt, Err: err}
			}

			if attempt == config.MaxAttempts {
				return fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, err)
			}

			delay := config.BackoffDelay(attempt)
			if config.OnRetry != nil {
				config.OnRetry(attempt, delay, err)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
				continue
			}
		}
		return nil
	}

	return lastErr
}
