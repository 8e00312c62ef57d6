package counter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := testPolicy.Do(context.Background(), logger, "flaky", nil, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	cause := fmt.Errorf("down")
	calls := 0
	err := testPolicy.Do(context.Background(), logger, "list", nil, func(ctx context.Context) error {
		calls++
		return cause
	})
	var callErr *ExternalCallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected ExternalCallError, got %v", err)
	}
	if callErr.Attempts != 3 || calls != 3 {
		t.Fatalf("expected 3 attempts, got %d (%d calls)", callErr.Attempts, calls)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be wrapped, got %s", err)
	}
	if ErrorCode(err) != "external_call" {
		t.Fatalf("unexpected code %s", ErrorCode(err))
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := testPolicy.Do(context.Background(), logger, "lookup",
		func(err error) bool { return !errors.Is(err, ErrNameNotFound) },
		func(ctx context.Context) error {
			calls++
			return ErrNameNotFound
		})
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
	if err != ErrNameNotFound {
		t.Fatalf("expected the permanent error back unchanged, got %v", err)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{Attempts: 5, MinBackoff: time.Hour, MaxBackoff: time.Hour}
	calls := 0
	err := policy.Do(ctx, logger, "cancelled", nil, func(ctx context.Context) error {
		calls++
		cancel()
		return fmt.Errorf("fail")
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNextBackoff(t *testing.T) {
	if got := nextBackoff(time.Second, 5*time.Second); got != 2*time.Second {
		t.Fatalf("expected 2s, got %s", got)
	}
	if got := nextBackoff(4*time.Second, 5*time.Second); got != 5*time.Second {
		t.Fatalf("expected cap at 5s, got %s", got)
	}
}
