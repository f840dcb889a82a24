// File: internal/browser/wait.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrWaitTimeout indicates a predicate did not produce a value before its
// deadline elapsed.
var ErrWaitTimeout = errors.New("timed out waiting for condition")

// Probe inspects the current state and reports whether a value is ready.
// Returning done=false means "not yet, keep polling". A non-nil error aborts
// the wait immediately.
type Probe[T any] func(ctx context.Context) (value T, done bool, err error)

// Poll repeatedly evaluates probe until it produces a value or timeout
// elapses. The target page exposes no event surface, so every DOM
// observation in this codebase is expressed as a Probe over repeated
// inspection rather than an event callback.
func Poll[T any](ctx context.Context, timeout, interval time.Duration, probe Probe[T]) (T, error) {
	var zero T
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		value, done, err := probe(waitCtx)
		if err != nil {
			return zero, err
		}
		if done {
			return value, nil
		}

		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			// Distinguish the bounded-wait deadline from an external
			// cancellation of the parent context.
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			return zero, fmt.Errorf("%w (after %v)", ErrWaitTimeout, timeout)
		}
	}
}
