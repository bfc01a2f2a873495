// Package retry runs fallible operations under cancellable exponential
// backoff.
package retry

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

// ErrShutdown is returned when the cancellation context fires before or
// during a retry loop. It preempts any in-flight backoff wait.
var ErrShutdown = errors.New("shutdown")

// Permanent marks err as terminal: the retry loop surfaces it immediately
// instead of consulting the backoff policy.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// RetryNotifyContext runs op repeatedly under the backoff policy b until it
// succeeds, returns a Permanent error, b gives up, or ctx is cancelled.
// Each retryable failure invokes notify with the error and the upcoming
// wait before sleeping.
//
// The whole loop races ctx: if ctx is already cancelled on entry, op is
// never invoked and an error wrapping ErrShutdown is returned; if ctx fires
// mid-attempt or mid-wait, the call returns immediately and the losing
// branch is abandoned rather than awaited. The context is a broadcast
// signal — any number of concurrent calls may share one, and all observe
// its cancellation.
//
// b is owned by a single call; it is not safe to share one policy between
// concurrent invocations.
func RetryNotifyContext[T any](ctx context.Context, b backoff.BackOff, op func() (T, error), notify backoff.Notify) (T, error) {
	var zero T

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %w", ErrShutdown, context.Cause(ctx))
	default:
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)

	go func() {
		v, err := backoff.RetryNotifyWithData(op, backoff.WithContext(b, ctx), notify)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %w", ErrShutdown, context.Cause(ctx))
	}
}
