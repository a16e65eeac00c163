package storage

import (
	"context"
	"time"

	"github.com/spotify/medusa-go/internal/merrors"
	"github.com/spotify/medusa-go/internal/mlog"
)

// RetryPolicy controls how WithRetry backs off between attempts.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	// Exponential doubles Backoff after each failed attempt when true;
	// otherwise every attempt waits the same fixed Backoff.
	Exponential bool
}

// DefaultRetryPolicy matches spec: 5 attempts, fixed backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: DefaultRetryAttempts, Backoff: time.Second, Exponential: false}
}

// WithRetry runs fn up to policy.Attempts times in total, retrying only
// merrors.TransientIO failures. Any other error (or a nil error) returns immediately.
func WithRetry(ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) error) error {
	logger := mlog.WithComponent("storage")
	wait := policy.Backoff
	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !merrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == policy.Attempts {
			break
		}
		logger.Warn().Err(lastErr).Str("op", op).Int("attempt", attempt).Msg("transient storage error, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if policy.Exponential {
			wait *= 2
		}
	}
	return merrors.New(op, merrors.TransientIO, lastErr)
}
