package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"reminder-service/internal/logging"
)

// Retry runs fn up to maxAttempts times with exponential backoff starting at
// delay. It gives up early when ctx is done.
func Retry(ctx context.Context, logger *logging.Logger, maxAttempts int, delay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	err := retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(uint(maxAttempts)),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(delay),
		retry.MaxDelay(30*delay),
		retry.OnRetry(func(n uint, err error) {
			logger.Errorf("Attempt %d/%d failed: %v", n+1, maxAttempts, err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("failed after %d attempts: %w", maxAttempts, err)
	}
	return nil
}
