package graph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// BackoffStrategy defines different backoff strategies
type BackoffStrategy int

const (
	FixedBackoff BackoffStrategy = iota
	ExponentialBackoff
	LinearBackoff
)

// RetryPolicy defines how recoverable node failures are retried.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first one.
	MaxRetries int

	// Backoff selects how the delay grows between attempts.
	Backoff BackoffStrategy

	// BaseDelay is the delay before the first retry. Defaults to one second.
	BaseDelay time.Duration

	// MaxDelay caps the delay between attempts. Zero means no cap.
	MaxDelay time.Duration

	// RetryableErrors lists substrings of error messages worth retrying.
	RetryableErrors []string

	// Retryable decides whether an error is worth retrying. It takes
	// precedence over RetryableErrors. When both are empty every error
	// is retried.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns a policy with two exponential retries.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: 2,
		Backoff:    ExponentialBackoff,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

func (p *RetryPolicy) shouldRetry(err error) bool {
	if p == nil || err == nil || IsFatal(err) {
		return false
	}
	var pe *panicError
	if errors.As(err, &pe) || errors.Is(err, ErrNodeTimeout) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	if len(p.RetryableErrors) == 0 {
		return true
	}
	msg := err.Error()
	for _, pattern := range p.RetryableErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// delay returns the wait before retry number attempt (zero based).
func (p *RetryPolicy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	var d time.Duration
	switch p.Backoff {
	case ExponentialBackoff:
		d = base * time.Duration(1<<attempt)
	case LinearBackoff:
		d = base * time.Duration(attempt+1)
	default:
		d = base
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// panicError carries a recovered node panic.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// callNode invokes fn, converting a panic into an error.
func callNode[S, U any](ctx context.Context, fn NodeFunc[S, U], state S) (patch U, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return fn(ctx, state)
}

// runWithRetry runs fn until it succeeds, the policy gives up, or ctx is done.
// It returns the number of attempts made.
func runWithRetry[S, U any](ctx context.Context, policy *RetryPolicy, fn NodeFunc[S, U], state S) (U, int, error) {
	var zero U
	attempts := 0
	for {
		attempts++
		patch, err := callNode(ctx, fn, state)
		if err == nil {
			return patch, attempts, nil
		}
		if policy == nil || attempts > policy.MaxRetries || !policy.shouldRetry(err) {
			return zero, attempts, err
		}

		select {
		case <-time.After(policy.delay(attempts - 1)):
		case <-ctx.Done():
			return zero, attempts, fmt.Errorf("retry cancelled after %d attempts: %w (last error: %v)", attempts, ctx.Err(), err)
		}
	}
}

// runWithTimeout runs fn in its own goroutine and waits for either its
// result, the deadline or cancellation of ctx. A body that ignores its
// context is abandoned; its late result is discarded. A zero timeout
// only waits for ctx.
func runWithTimeout[U any](ctx context.Context, timeout time.Duration, fn func(context.Context) (U, int, error)) (U, int, error) {
	var zero U
	var (
		timeoutCtx context.Context
		cancel     context.CancelFunc
	)
	if timeout > 0 {
		timeoutCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		timeoutCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type result struct {
		value    U
		attempts int
		err      error
	}
	resultChan := make(chan result, 1)

	go func() {
		value, attempts, err := fn(timeoutCtx)
		resultChan <- result{value: value, attempts: attempts, err: err}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil && ctx.Err() == nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return zero, res.attempts, fmt.Errorf("%w after %v: %v", ErrNodeTimeout, timeout, res.err)
		}
		return res.value, res.attempts, res.err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return zero, 0, ctx.Err()
		}
		return zero, 0, fmt.Errorf("%w after %v", ErrNodeTimeout, timeout)
	}
}
