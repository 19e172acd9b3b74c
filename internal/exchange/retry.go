package exchange

import (
	"context"
	"time"

	"perpilot/internal/apperr"
	"perpilot/internal/logger"
)

var retryLog = logger.With("exchange.retry")

// withRetry retries op up to maxAttempts times on apperr.UpstreamTransient errors, backing off
// exponentially from baseDelay with each wait capped at one minute. Any other error kind returns
// immediately.
func withRetry(ctx context.Context, maxAttempts int, baseDelay time.Duration, op func() error) error {
	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !apperr.Retryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		retryLog.Warnf("attempt %d/%d failed, retrying in %s: %v", attempt, maxAttempts, delay, lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > time.Minute {
			delay = time.Minute
		}
	}
	return lastErr
}
