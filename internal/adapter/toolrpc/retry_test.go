package toolrpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, Base: 2.0, MaxDelay: 10 * time.Millisecond}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsRetryableErrors(t *testing.T) {
	calls := 0
	onRetries := 0
	connErr := &ConnectionError{Tool: "price", Err: errors.New("dial refused")}
	err := Retry(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return connErr
	}, func(attempt int, err error) {
		onRetries++
		assert.True(t, IsRetryable(err))
	})

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, calls)
	// onRetry fires between attempts only, never after the final failure.
	assert.Equal(t, 2, onRetries)
	assert.ErrorIs(t, err, connErr)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	toolErr := &ToolError{Tool: "price", Status: 400, Message: "bad ticker"}
	err := Retry(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		return toolErr
	}, nil)
	require.Equal(t, toolErr, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return &ConnectionError{Tool: "price", Err: errors.New("timeout")}
		}
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancelAbortsWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour, Base: 2.0}
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, cfg, func(context.Context) error {
		calls++
		return &ConnectionError{Tool: "price", Err: errors.New("down")}
	}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryConfig_DelayGrowthAndCap(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 200 * time.Millisecond, Base: 2.0, MaxDelay: 5 * time.Second}
	assert.Equal(t, 200*time.Millisecond, cfg.Delay(0))
	assert.Equal(t, 400*time.Millisecond, cfg.Delay(1))
	assert.Equal(t, 800*time.Millisecond, cfg.Delay(2))
	// Exponent 10 would be ~205s without the cap.
	assert.Equal(t, 5*time.Second, cfg.Delay(10))
}

func TestRetryConfig_JitterRange(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, Base: 2.0, MaxDelay: 5 * time.Second, Jitter: true}
	for i := 0; i < 100; i++ {
		d := cfg.Delay(0)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, time.Second)
	}
}
