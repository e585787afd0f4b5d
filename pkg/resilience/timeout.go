package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is wrapped by WithTimeout when the limit, not the parent
// context, ended the call.
var ErrTimeout = errors.New("operation timed out")

// WithTimeout runs fn with a context that expires after timeout. fn is
// expected to honour its context; WithTimeout does not abandon it. A
// non-positive timeout runs fn with ctx unchanged.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(timeoutCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w after %v: %w", name, ErrTimeout, timeout, err)
	}
	return err
}
