package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds how often a step is attempted. Delay is a fixed pause
// between attempts.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// SingleAttempt never retries.
var SingleAttempt = RetryPolicy{Attempts: 1}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// Outcome is what Retry produced: the value of the first successful attempt,
// or the last error.
type Outcome[T any] struct {
	Value    T
	Attempts int
	Err      error
}

// OK reports whether an attempt succeeded.
func (o Outcome[T]) OK() bool { return o.Err == nil }

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry runs fn until it succeeds, returns a Permanent error, or the policy
// is exhausted. Pauses between attempts end early when ctx is cancelled.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int) (T, error)) Outcome[T] {
	var out Outcome[T]
	n := p.attempts()
	for attempt := 1; attempt <= n; attempt++ {
		out.Attempts = attempt
		v, err := fn(ctx, attempt)
		if err == nil {
			out.Value, out.Err = v, nil
			return out
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			out.Err = perm.err
			return out
		}
		out.Err = err

		if attempt == n {
			break
		}
		if err := sleep(ctx, p.Delay); err != nil {
			out.Err = fmt.Errorf("%w (last attempt: %v)", err, out.Err)
			return out
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
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
