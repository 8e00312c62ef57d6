package counter

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type RetryPolicy struct {
	Attempts   int
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// Timeout bounds each individual attempt
	Timeout time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	Attempts:   3,
	MinBackoff: 500 * time.Millisecond,
	MaxBackoff: 5 * time.Second,
	Timeout:    10 * time.Second,
}

// withTimeout runs fn under the per-call deadline of the policy.
func (p RetryPolicy) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(callCtx)
}

// Do retries fn with exponential backoff. retryable decides whether a failure
// is worth another attempt; nil means every error is.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, op string,
	retryable func(error) bool, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.MinBackoff
	var err error
	for attempt := 1; ; attempt++ {
		err = p.withTimeout(ctx, fn)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt >= attempts {
			return &ExternalCallError{Op: op, Attempts: attempt, Err: err}
		}
		logger.Warn("external call failed, retrying", zap.String("op", op),
			zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return &ExternalCallError{Op: op, Attempts: attempt, Err: ctx.Err()}
		}
		backoff = nextBackoff(backoff, p.MaxBackoff)
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max || next < current {
		return max
	}
	return next
}
