package actions

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SafeClick clicks selector up to max(1, retries) times, sleeping delay between
// attempts. Only the final outcome is recorded, as a single step. The last click
// error is returned once every attempt has failed; a cancelled ctx ends the
// wait early.
func (a *Actions) SafeClick(ctx context.Context, selector string, retries int, delay time.Duration) error {
	attempts := max(1, retries)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = a.page.Click(ctx, selector)
		if lastErr == nil {
			a.passed(ctx, fmt.Sprintf("SafeClick → %s (attempt %d)", selector, attempt))
			return nil
		}
		if attempt == attempts {
			break
		}
		a.logger.Debug("Click failed, retrying.",
			zap.String("selector", selector),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		if err := sleepCtx(ctx, delay); err != nil {
			return a.failed(ctx, fmt.Sprintf("SafeClick → %s (attempt %d of %d)", selector, attempt, attempts),
				fmt.Errorf("%w (last click error: %v)", err, lastErr))
		}
	}
	return a.failed(ctx, fmt.Sprintf("SafeClick → %s (attempt %d of %d)", selector, attempts, attempts), lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
