package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

// WithTimeout runs fn with a derived context that is cancelled after
// timeout. If fn does not return in time the result wraps both
// apperrors.ErrTimeout and context.DeadlineExceeded. A non-positive timeout
// runs fn unbounded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		if err != nil && timeoutCtx.Err() != nil {
			return timeoutError(ctx, name, timeout)
		}
		return err
	case <-timeoutCtx.Done():
		return timeoutError(ctx, name, timeout)
	}
}

func timeoutError(parent context.Context, name string, timeout time.Duration) error {
	if parent.Err() != nil {
		return fmt.Errorf("%s: parent context cancelled: %w", name, parent.Err())
	}
	return fmt.Errorf("%s: %w: %w (limit: %v)", name, apperrors.ErrTimeout, context.DeadlineExceeded, timeout)
}
