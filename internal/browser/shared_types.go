// internal/browser/shared_types.go
package browser

import (
	"context"
	"time"
)

// valueOnlyContext is a context that inherits values but not cancellation.
// Cleanup that must run after the caller's context is cancelled derives from it.
type valueOnlyContext struct{ context.Context }

func (valueOnlyContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (valueOnlyContext) Done() <-chan struct{}       { return nil }
func (valueOnlyContext) Err() error                  { return nil }

// detachedTimeout returns a cleanup context that survives cancellation of parent
// but still expires after d.
func detachedTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(valueOnlyContext{parent}, d)
}

// combineContext derives from primary and is additionally cancelled when
// secondary is done. The returned cancel must always be called.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
