package subsonic

import (
	"context"
	"fmt"
	"time"

	"github.com/zaploop/voice-assistant-navidrome/internal/metrics"
)

// withRetry runs fn up to MaxRetries+1 times with exponential backoff.
// Protocol rejections (bad auth, bad parameters, not found) abort
// immediately; only transport and server-side failures are retried.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	delay := c.config.RetryBaseDelay
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.RemoteRetries.Inc()
			c.logger.Warn().
				Str("endpoint", op).
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("Retrying request")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.config.BackoffFactor)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !transient(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%w: %s failed after %d attempts: %v",
		ErrRemoteUnavailable, op, c.config.MaxRetries+1, lastErr)
}
