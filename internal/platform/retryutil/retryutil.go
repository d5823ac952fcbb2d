package retryutil

import (
	"context"
	"time"
)

// Do retries fn while shouldRetry reports the returned error as retryable.
// Only reads and idempotent writes belong here; the delay doubles per attempt.
func Do(ctx context.Context, attempts int, baseDelay time.Duration, shouldRetry func(error) bool, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || shouldRetry == nil || !shouldRetry(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
