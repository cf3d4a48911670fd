package radar

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var errPermanent = errors.New("permanent failure")

// Permanent marks an error as non-retryable. Retrying a deterministic
// failure (for example a zero-area crop) would only repeat the bug.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", errPermanent, err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, errPermanent)
}

// RetryPolicy runs an operation up to Attempts times with a fixed delay
// between attempts. Sleep is injectable so tests can use a fake clock.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	Sleep    func(ctx context.Context, d time.Duration) error
}

// Run invokes op until it succeeds, the attempt budget is exhausted, the
// error is permanent, or the context ends. op receives the 1-based attempt
// number.
func (p RetryPolicy) Run(ctx context.Context, op func(attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, p.Delay); err != nil {
				return err
			}
		}
		last = op(attempt)
		if last == nil {
			return nil
		}
		if IsPermanent(last) || ctx.Err() != nil {
			return last
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, last)
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry wait canceled: %w", ctx.Err())
	}
}
