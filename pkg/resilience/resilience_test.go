package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: err = %v, want boom", i, err)
		}
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	// Open circuit rejects without invoking fn.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn was invoked while circuit open")
	}
}

func TestCircuitBreakerRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})

	if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(20 * time.Millisecond)

	// First request after the cool-down is the half-open probe; success
	// closes the circuit.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe err = %v", err)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("state = %v, want closed after successful probe", got)
	}
}

func TestCircuitBreakerProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})

	cb.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("probe err = %v, want boom", err)
	}
	if got := cb.State(); got != StateOpen {
		t.Errorf("state = %v, want open after failed probe", got)
	}
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})

	cb.Execute(func() error { return errBoom })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errBoom })

	if got := cb.State(); got != StateClosed {
		t.Errorf("state = %v, want closed: success should reset the failure count", got)
	}
}

func TestCircuitBreakerOnStateChange(t *testing.T) {
	type transition struct{ from, to State }
	var seen []transition
	cb := NewCircuitBreaker("watched", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
		OnStateChange: func(name string, from, to State) {
			if name != "watched" {
				t.Errorf("name = %q, want watched", name)
			}
			seen = append(seen, transition{from, to})
		},
	})

	cb.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)
	cb.Execute(func() error { return nil })

	want := []transition{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestRetryEventualSuccess(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "flaky", RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
	}, func() error {
		attempts++
		if attempts < 3 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExhaustion(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "down", RetryConfig{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
	}, func() error {
		attempts++
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("Retry = %v, want wrapped boom", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRetryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, "cancelled", RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
	}, func() error {
		attempts++
		return errBoom
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1: no retries after cancellation", attempts)
	}
}

func TestWithTimeoutExpires(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow_op", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WithTimeout = %v, want DeadlineExceeded", err)
	}
}

func TestWithTimeoutCompletes(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, "fast_op", func(ctx context.Context) error {
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("WithTimeout = %v, want boom passed through", err)
	}
}

func TestWithTimeoutDisabled(t *testing.T) {
	// A non-positive timeout runs fn inline with the caller's context.
	base := context.Background()
	err := WithTimeout(base, 0, "direct", func(ctx context.Context) error {
		if ctx != base {
			t.Error("fn did not receive the caller's context")
		}
		return nil
	})
	if err != nil {
		t.Errorf("WithTimeout = %v, want nil", err)
	}
}
