// Package retry wraps fallible operations with bounded, exponentially
// backed-off retries.
//
// Only transient failures are retried: network-level errors, timeouts, and
// errors explicitly tagged with [Unavailable]. Everything else — validation
// failures, business rejections, missing records — propagates immediately,
// with no delay and no retry. When the retry budget is spent the last
// observed error is surfaced wrapped in an [*ExhaustedError] so the boundary
// layer can answer with a service-unavailable response and a suggested
// retry-after duration.
//
// The backoff schedule is pure and shared with the HTTP client: see
// [Backoff].
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// Defaults applied by [Config.withDefaults].
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 10 * time.Second
	DefaultMultiplier   = 2.0
)

// Config controls the retry loop and the backoff schedule.
type Config struct {
	MaxRetries   int           // retries after the first attempt; default 3
	InitialDelay time.Duration // delay after the first failure; default 1s
	MaxDelay     time.Duration // cap on any single delay; default 10s
	Multiplier   float64       // exponential growth factor; default 2
	Jitter       float64       // ± fraction of the delay randomized; default 0

	// Sleep is the wait primitive, injectable so tests run without real
	// delays. Nil means wait on a timer, aborting when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns the documented default retry budget.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Multiplier:   DefaultMultiplier,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = DefaultMultiplier
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ErrUnavailable marks an error as a transient unavailability signal.
// Storage wrappers and test doubles tag errors with [Unavailable] so the
// retry loop treats them as retryable even when they carry no network type.
var ErrUnavailable = errors.New("temporarily unavailable")

// Unavailable tags err as transient. The returned error matches both err and
// [ErrUnavailable] under errors.Is.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return &unavailableError{err: err}
}

type unavailableError struct {
	err error
}

func (e *unavailableError) Error() string { return e.err.Error() }
func (e *unavailableError) Unwrap() []error {
	return []error{e.err, ErrUnavailable}
}

// IsTransient reports whether err looks like a temporary condition worth
// retrying: tagged unavailability, network-level failures, and timeouts.
// Context cancellation is never transient — the caller gave up.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return false
}

// ExhaustedError reports that every attempt failed with a transient error.
// RetryAfter is the suggested wait before the caller tries the whole
// operation again; the HTTP boundary forwards it in the 503 body.
type ExhaustedError struct {
	Op         string
	Attempts   int
	RetryAfter time.Duration
	Err        error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts failed, last error: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do runs fn, retrying transient failures up to cfg.MaxRetries times with
// the delays produced by [Backoff]. Non-transient errors return immediately.
// When the budget is spent the last error is returned wrapped in an
// [*ExhaustedError]. Waits abort when ctx is done.
func Do[T any](ctx context.Context, cfg Config, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := cfg.Sleep(ctx, Backoff(attempt-1, cfg, 0)); err != nil {
				return zero, fmt.Errorf("%s: %w", op, err)
			}
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, &ExhaustedError{
		Op:         op,
		Attempts:   cfg.MaxRetries + 1,
		RetryAfter: Backoff(cfg.MaxRetries, cfg, 0),
		Err:        lastErr,
	}
}
