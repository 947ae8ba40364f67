package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	backoffMult = 2
	maxBackoff  = 10 * time.Second
)

// initialBackoff is a var so tests can shorten it.
var initialBackoff = 1 * time.Second

// RetryableError signals a provider failure that may succeed on a later
// attempt (rate limits and 5xx responses).
type RetryableError struct {
	StatusCode int
	Body       string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether err wraps a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// WithRetry runs fn up to attempts times, backing off between attempts, and
// only retries RetryableError failures.
func WithRetry(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= time.Duration(backoffMult)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
