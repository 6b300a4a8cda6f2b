package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/errors"
)

// WithTimeout gives fn at most timeout to finish. It returns as soon as the
// deadline passes even if fn ignores its context; the late result is dropped.
// The timeout error matches both apperrors.ErrTimeout and
// context.DeadlineExceeded. A non-positive timeout runs fn inline.
func WithTimeout(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(ctx) }()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
	}
	if cause := context.Cause(ctx); !errors.Is(cause, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", name, cause)
	}
	return fmt.Errorf("%s after %v: %w: %w", name, timeout, apperrors.ErrTimeout, context.DeadlineExceeded)
}
