// File: internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from primary (which carries the CDP
// target information) that is additionally canceled when secondary is done.
// chromedp requires the session context for connection routing while the
// caller's context carries the operational deadline; this joins the two.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// valueOnlyContext inherits values from its parent but ignores the parent's
// deadline and cancellation signal.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that keeps ctx's values (notably the CDP target)
// but survives its cancellation. Used for cleanup work that must complete
// even when the triggering operation is already canceled.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
