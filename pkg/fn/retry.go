package fn

import (
	"context"
	"time"
)

// RetryOpts configures Retry. Waits double after every failed attempt up to MaxWait.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	// OnRetry, if set, is called before each sleep with the failed attempt number.
	OnRetry func(attempt int, err error)
}

// StartupRetry is used when waiting for dependencies at process start.
var StartupRetry = RetryOpts{
	MaxAttempts: 10,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     5 * time.Second,
}

// Retry calls f until it succeeds, attempts run out, or ctx is done.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	wait := opts.InitialWait
	var result Result[T]
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result = f(ctx)
		if result.IsOk() || attempt == opts.MaxAttempts {
			return result
		}
		if opts.OnRetry != nil {
			_, err := result.Unwrap()
			opts.OnRetry(attempt, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Err[T](ctx.Err())
		case <-timer.C:
		}

		wait *= 2
		if opts.MaxWait > 0 && wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
	return result
}
