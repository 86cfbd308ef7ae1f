// Package retry provides a bounded fixed-delay retry loop.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned when every attempt failed without an error
// worth reporting, e.g. an operation that keeps producing nothing.
var ErrExhausted = errors.New("retry: attempts exhausted")

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do stops retrying and returns err unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do calls op until it succeeds, returns a Permanent error, ctx ends, or
// attempts calls have been made. op receives the 1-based attempt number.
// Do returns the number of calls made and the last error.
func Do(ctx context.Context, attempts int, delay time.Duration, op func(attempt int) error) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return attempt - 1, lastErr
		}
		err := op(attempt)
		if err == nil {
			return attempt, nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return attempt, perm.err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if serr := Sleep(ctx, delay); serr != nil {
			return attempt, lastErr
		}
	}
	return attempts, lastErr
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
