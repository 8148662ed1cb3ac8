package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/camharness/camharness-go/pkg/bus"
)

func TestRetryWithBackoff_SucceedsOnThirdAttempt(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   10 * time.Millisecond,
	}, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_ExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("broker down")
	calls := 0
	err := retryWithBackoff(context.Background(), RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Millisecond,
	}, func() error {
		calls++
		return Infrastructure(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	start := time.Now()
	err := retryWithBackoff(ctx, RetryConfig{
		MaxAttempts: 10,
		BaseDelay:   500 * time.Millisecond,
	}, func() error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("took too long (%v), context cancellation not respected", elapsed)
	}
}

func TestRetryWithBackoff_StopsOnNonRetryable(t *testing.T) {
	for _, wrap := range []func(error) error{Camera, Scenario} {
		calls := 0
		base := errors.New("rejected")
		err := retryWithBackoff(context.Background(), RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   10 * time.Millisecond,
		}, func() error {
			calls++
			return wrap(base)
		})
		if calls != 1 {
			t.Errorf("%v: expected 1 call, got %d", Category(err), calls)
		}
		if !errors.Is(err, base) {
			t.Errorf("expected wrapped error, got %v", err)
		}
	}
}

func TestRetryWithBackoff_CapsAtMaxDelay(t *testing.T) {
	var timestamps []time.Time
	err := retryWithBackoff(context.Background(), RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    150 * time.Millisecond,
	}, func() error {
		timestamps = append(timestamps, time.Now())
		if len(timestamps) < 5 {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	for i := 2; i < len(timestamps)-1; i++ {
		if d := timestamps[i+1].Sub(timestamps[i]); d > 300*time.Millisecond {
			t.Errorf("delay %d = %v exceeds the cap", i, d)
		}
	}
}

func TestRetryWithBackoff_ZeroAttemptsReturnsError(t *testing.T) {
	err := retryWithBackoff(context.Background(), RetryConfig{}, func() error {
		t.Fatal("fn should not be called with 0 attempts")
		return nil
	})
	if !errors.Is(err, errNoAttempts) {
		t.Fatalf("expected errNoAttempts, got %v", err)
	}
}

func TestDialWithRetry(t *testing.T) {
	calls := 0
	bctx, err := dialWithRetry(context.Background(), 3, func() (*bus.Context, error) {
		calls++
		if calls == 1 {
			return nil, Infrastructure(errors.New("connection refused"))
		}
		return bus.Init(context.Background())
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	defer bctx.Shutdown()
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestContextSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := contextSleep(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	start := time.Now()
	if err := contextSleep(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("returned early")
	}
}
