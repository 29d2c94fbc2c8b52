// Package wait polls a condition until it holds or a deadline passes.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/use-agent/browserkit/driver"
)

// ErrTimeout is returned (wrapped) when a condition never held before the
// deadline.
var ErrTimeout = errors.New("wait: timed out")

// Condition reports the current value and whether the wait is satisfied.
// A non-nil error aborts the wait.
type Condition[T any] func(ctx context.Context) (T, bool, error)

// Until evaluates cond immediately and then every interval until it reports
// true, it returns an error, or timeout elapses. On timeout the returned
// error wraps ErrTimeout. Cancelling ctx stops the wait with ctx's error.
func Until[T any](ctx context.Context, timeout, interval time.Duration, cond Condition[T]) (T, error) {
	var zero T
	if interval <= 0 {
		return zero, fmt.Errorf("wait: interval must be positive, got %s", interval)
	}

	start := time.Now()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		v, ok, err := cond(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return zero, ctx.Err()
		case err != nil:
			return zero, err
		case ok:
			return v, nil
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-deadline.C:
			return zero, fmt.Errorf("%w after %s", ErrTimeout, time.Since(start).Round(time.Millisecond))
		case <-ticker.C:
		}
	}
}

// ElementsPresent is satisfied once selector matches at least one element.
// The value is the matched elements in document order.
func ElementsPresent(d driver.Driver, selector string) Condition[[]driver.Element] {
	return func(ctx context.Context) ([]driver.Element, bool, error) {
		els, err := d.FindElements(ctx, selector)
		if err != nil {
			return nil, false, err
		}
		return els, len(els) > 0, nil
	}
}
