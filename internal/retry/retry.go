// Package retry wraps calls to a remote backend with per-attempt timeouts
// and capped exponential backoff for failures classified as transient.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 10 * time.Second
	DefaultMaxDelay   = 120 * time.Second
	DefaultTimeout    = 600 * time.Second
)

var (
	// ErrTransient marks an error as worth retrying when wrapped with %w.
	ErrTransient = errors.New("transient failure")
	// ErrExhausted is matched by every error returned after the last retry.
	ErrExhausted = errors.New("retries exhausted")
	// ErrAttemptTimeout is reported when a single attempt outlives its
	// timeout.
	ErrAttemptTimeout = errors.New("attempt timed out")
)

type Class int

const (
	Terminal Class = iota
	Transient
)

func (c Class) String() string {
	if c == Transient {
		return "transient"
	}
	return "terminal"
}

// Classify decides whether err is worth another attempt. It only inspects
// typed errors; messages are never parsed.
func Classify(err error) Class {
	if err == nil {
		return Terminal
	}
	if errors.Is(err, context.Canceled) {
		return Terminal
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrAttemptTimeout) {
		return Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}

	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		if temp.Temporary() {
			return Transient
		}
		return Terminal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	return Terminal
}

// Mark wraps err so that Classify reports it as transient.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Error reports the last failure of a call together with the number of
// attempts made. Exhausted is set when the failure was transient and the
// retry budget ran out.
type Error struct {
	Op        string
	Attempts  int
	Exhausted bool
	Err       error
}

func (e *Error) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Exhausted {
		return []error{ErrExhausted, e.Err}
	}
	return []error{e.Err}
}

type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration

	Classify func(error) Class
	Sleep    func(ctx context.Context, d time.Duration) error
	OnRetry  func(attempt int, delay time.Duration, err error)
	Logger   *zap.Logger
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Timeout:    DefaultTimeout,
	}
}

// Backoff returns the wait before retry number n, counting from 1.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, fails terminally, or the retry budget is
// spent. Attempts are strictly sequential.
func Do[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	classify := p.Classify
	if classify == nil {
		classify = Classify
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	attempts := p.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := runAttempt(ctx, p.Timeout, fn)
		if err == nil {
			if attempt > 1 {
				logger.Debug("retry succeeded", zap.String("op", op), zap.Int("attempt", attempt))
			}
			return value, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		lastErr = err

		if classify(err) != Transient {
			logger.Debug("terminal failure", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
			return zero, &Error{Op: op, Attempts: attempt, Err: err}
		}
		if attempt == attempts {
			break
		}

		delay := p.Backoff(attempt)
		logger.Warn("transient failure, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, &Error{Op: op, Attempts: attempts, Exhausted: true, Err: lastErr}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, err := fn(actx)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return value, fmt.Errorf("%w after %s: %w", ErrAttemptTimeout, timeout, err)
	}
	return value, err
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
