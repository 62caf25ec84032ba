package toolrpc

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig bounds retry behavior for an operation. Delay at attempt n
// (0-indexed) is min(InitialDelay * Base^n, MaxDelay); with Jitter enabled the
// delay is multiplied by a uniform sample in [0.5, 1.0].
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Base         float64
	MaxDelay     time.Duration
	Jitter       bool
}

// DefaultRetryConfig returns the retry policy used for tool calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		Base:         2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
}

// RetryExhaustedError is returned once all attempts failed with retryable
// errors. It wraps the last error.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastErr }

// Retry runs op up to cfg.MaxAttempts times, sleeping the backoff delay
// between attempts. Non-retryable errors stop immediately and are returned
// as-is. onRetry, when non-nil, is invoked after each failed attempt except
// the final one. Context cancellation aborts the wait and returns ctx.Err().
func Retry(ctx context.Context, cfg RetryConfig, op func(context.Context) error, onRetry func(attempt int, err error)) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Delay(attempt)):
		}
	}
	return &RetryExhaustedError{Attempts: cfg.MaxAttempts, LastErr: lastErr}
}

// Delay computes the backoff delay for the given 0-indexed attempt.
func (cfg RetryConfig) Delay(attempt int) time.Duration {
	base := cfg.Base
	if base <= 0 {
		base = 2.0
	}
	d := time.Duration(float64(cfg.InitialDelay) * math.Pow(base, float64(attempt)))
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if cfg.Jitter {
		d = time.Duration(float64(d) * (0.5 + 0.5*rand.Float64())) //nolint:gosec // Weak random is fine for jitter.
	}
	return d
}
