package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/errors"
)

var errBoom = errors.New("boom")

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "fetch", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "fetch", RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return false },
	}, func() error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCircuitBreakerOpensAndReportsState(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("cache", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %s, want open", cb.GetState())
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Errorf("transitions = %v", transitions)
	}
}

func TestWithTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		fn      func(ctx context.Context) error
		want    []error
	}{
		{"deadline", 10 * time.Millisecond, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}, []error{context.DeadlineExceeded, apperrors.ErrTimeout}},
		{"ignores context", 10 * time.Millisecond, func(context.Context) error {
			time.Sleep(200 * time.Millisecond)
			return nil
		}, []error{apperrors.ErrTimeout}},
		{"fast", time.Second, func(context.Context) error { return nil }, nil},
		{"inline", 0, func(context.Context) error { return errBoom }, []error{errBoom}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			err := WithTimeout(context.Background(), tt.name, tt.timeout, tt.fn)
			if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
				t.Errorf("returned after %v", elapsed)
			}
			if tt.want == nil && err != nil {
				t.Errorf("err = %v, want nil", err)
			}
			for _, w := range tt.want {
				if !errors.Is(err, w) {
					t.Errorf("err = %v, want %v in chain", err, w)
				}
			}
		})
	}
}

func TestWithTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithTimeout(ctx, "cancelled", time.Second, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	if err != nil && errors.Is(err, apperrors.ErrTimeout) {
		t.Errorf("parent cancellation reported as timeout: %v", err)
	}
}
