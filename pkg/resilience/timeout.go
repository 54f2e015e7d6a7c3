package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn under a context that expires after the given limit,
// returning a wrapped context.DeadlineExceeded if fn does not finish in
// time. A non-positive timeout runs fn inline with the caller's context.
//
// fn runs on its own goroutine so the deadline fires even when fn is stuck
// in a call that ignores cancellation. A late fn keeps running in the
// background and its result is discarded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(tctx) }()

	select {
	case err := <-result:
		return err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: caller gave up: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w after %v", name, context.DeadlineExceeded, timeout)
	}
}
