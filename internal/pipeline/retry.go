package pipeline

import (
	"context"
	"time"
)

// RetryPolicy bounds the attempts made for one source.
type RetryPolicy struct {
	// Attempts is the total number of attempts, the first one included.
	// Values below 1 are treated as 1.
	Attempts int

	// Delay is the fixed wait between two attempts.
	Delay time.Duration
}

// Run calls fn until it succeeds or the attempts are exhausted, waiting
// Delay between attempts. onRetry, when not nil, is called after a failed
// attempt that will be followed by another one.
//
// Run returns nil on success, ctx.Err() if the context ends first, and the
// last error of fn otherwise. The wait is a timer select, so cancellation
// interrupts it immediately.
func (p RetryPolicy) Run(ctx context.Context, fn func(ctx context.Context, attempt int) error, onRetry func(attempt int, err error)) error {
	attempts := max(p.Attempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt == attempts {
			break
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}
		if waitErr := sleep(ctx, p.Delay); waitErr != nil {
			return waitErr
		}
	}
	return err
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
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
