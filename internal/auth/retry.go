package auth

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	readAttempts = 3
	readBackoff  = 50 * time.Millisecond
)

// retryRead runs an idempotent store read, retrying failures with bounded
// exponential backoff. Context cancellation is never retried. Writes must not
// go through here.
func retryRead(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(readAttempts-1, retry.NewExponential(readBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return retry.RetryableError(err)
	})
}
