package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when an operation run through WithDeadline exceeds
// its deadline.
var ErrTimeout = errors.New("timeout")

// WithDeadline runs op under its own deadline derived from ctx. When the
// deadline expires the context passed to op is cancelled and ErrTimeout is
// returned regardless of what op reports. A zero or negative timeout runs op
// with ctx unchanged.
func WithDeadline[T any](ctx context.Context, timeout time.Duration, name string, op func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := op(opCtx)
	if err != nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		var zero T
		return zero, fmt.Errorf("%s after %v: %w", name, timeout, ErrTimeout)
	}
	return v, err
}

// RunWithDeadline is WithDeadline for operations without a result.
func RunWithDeadline(ctx context.Context, timeout time.Duration, name string, op func(context.Context) error) error {
	_, err := WithDeadline(ctx, timeout, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
