package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordedSleeps returns a Sleep that records requested delays without
// actually waiting.
func recordedSleeps(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestBackoffSchedule(t *testing.T) {
	cfg := Config{
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}

	assert.Equal(t, 1*time.Second, Backoff(0, cfg, 0))
	assert.Equal(t, 2*time.Second, Backoff(1, cfg, 0))
	assert.Equal(t, 4*time.Second, Backoff(2, cfg, 0))
	assert.Equal(t, 8*time.Second, Backoff(3, cfg, 0))
	// Capped at MaxDelay from here on.
	assert.Equal(t, 10*time.Second, Backoff(4, cfg, 0))
	assert.Equal(t, 10*time.Second, Backoff(20, cfg, 0))
}

func TestBackoffServerHint(t *testing.T) {
	cfg := Config{
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}

	// The hint wins over the computed schedule.
	assert.Equal(t, 3*time.Second, Backoff(0, cfg, 3*time.Second))
	// But never exceeds the cap.
	assert.Equal(t, 10*time.Second, Backoff(0, cfg, 30*time.Second))
}

func TestBackoffJitterStaysInBounds(t *testing.T) {
	cfg := Config{
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       0.5,
	}

	for i := 0; i < 200; i++ {
		d := Backoff(1, cfg, 0) // base 2s, jittered ±1s
		assert.GreaterOrEqual(t, d, 1*time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	var delays []time.Duration
	cfg := Config{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Sleep:        recordedSleeps(&delays),
	}

	calls := 0
	result, err := Do(context.Background(), cfg, "op", func(ctx context.Context) (string, error) {
		calls++
		if calls <= 3 {
			return "", Unavailable(errors.New("connection refused"))
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 4, calls)
	require.Len(t, delays, 3)
	assert.GreaterOrEqual(t, delays[0], 1*time.Second)
	assert.GreaterOrEqual(t, delays[1], 2*time.Second)
	assert.GreaterOrEqual(t, delays[2], 4*time.Second)
}

func TestDoNonTransientReturnsImmediately(t *testing.T) {
	var delays []time.Duration
	cfg := DefaultConfig()
	cfg.Sleep = recordedSleeps(&delays)

	permanent := errors.New("title must not be empty")
	calls := 0
	_, err := Do(context.Background(), cfg, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays, "non-transient errors must not wait")
}

func TestDoExhaustsBudget(t *testing.T) {
	var delays []time.Duration
	cfg := Config{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Sleep:        recordedSleeps(&delays),
	}

	last := Unavailable(errors.New("still down"))
	calls := 0
	_, err := Do(context.Background(), cfg, "get page", func(ctx context.Context) (int, error) {
		calls++
		return 0, last
	})

	assert.Equal(t, 4, calls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "get page", exhausted.Op)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Greater(t, exhausted.RetryAfter, time.Duration(0))
	assert.ErrorIs(t, exhausted.Err, ErrUnavailable)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := DefaultConfig()
	cfg.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := Do(ctx, cfg, "op", func(ctx context.Context) (int, error) {
		return 0, Unavailable(errors.New("down"))
	})
	require.ErrorIs(t, err, context.Canceled)
}

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "dial tcp: i/o timeout" }
func (fakeNetError) Timeout() bool   { return true }
func (fakeNetError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("validation failed")))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(context.DeadlineExceeded))

	assert.True(t, IsTransient(ErrUnavailable))
	assert.True(t, IsTransient(Unavailable(errors.New("db down"))))
	assert.True(t, IsTransient(fmt.Errorf("query: %w", Unavailable(errors.New("db down")))))
	assert.True(t, IsTransient(syscall.ECONNREFUSED))
	assert.True(t, IsTransient(fakeNetError{}))
	assert.True(t, IsTransient(&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}))
}

func TestUnavailablePreservesOriginalError(t *testing.T) {
	original := errors.New("socket closed")
	tagged := Unavailable(original)

	assert.ErrorIs(t, tagged, original)
	assert.ErrorIs(t, tagged, ErrUnavailable)
	assert.Equal(t, original.Error(), tagged.Error())
	assert.Nil(t, Unavailable(nil))
}
