// Package resilience provides the retry, circuit-breaker, timeout, and
// health-monitor primitives for calls to the external embedding and
// text-generation providers. No other package in this module calls
// them; the Librarian classifies provider failures on its own.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/patronlib/librarystack/pkg/capability"
	"github.com/patronlib/librarystack/pkg/liberr"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier is the exponential backoff factor.
	Multiplier float64

	// Jitter, when true, replaces each delay with a uniformly random
	// duration between zero and that delay. The jitter is one-sided and
	// its spread is fixed.
	Jitter bool

	// ShouldRetry decides whether a given error is worth retrying. A nil
	// value retries every non-nil error.
	ShouldRetry func(error) bool
}

// DefaultRetryConfig returns sensible defaults: 3 retries, 1s initial
// delay doubling up to 16s, with jitter enabled.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// IsTransient classifies an error as transient: a capability.Error
// classified Transient, a net.Error (network failure or timeout), an
// expired context deadline, and the provider-timeout,
// provider-unavailable and operation-timeout kinds. HTTP status codes
// are not inspected; a provider marks a retryable HTTP failure by
// wrapping it with capability.NewTransientError.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var capErr *capability.Error
	if errors.As(err, &capErr) {
		return capErr.Classify()
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch liberr.Of(err) {
	case liberr.KindProviderTimeout, liberr.KindProviderUnavailable, liberr.KindOperationTimeout:
		return true
	}
	return false
}

// Retry executes fn with exponential backoff. On exhaustion it returns a
// *liberr.LibraryError of KindRetryExhausted wrapping the last error; if
// ctx is cancelled mid-sleep it returns KindRetryAborted instead.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(error) bool { return true }
	}

	delay := cfg.InitialDelay
	var lastErr error

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return liberr.New(liberr.KindRetryAborted, liberr.CodeRetryAborted, "retry aborted", ctx.Err())
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt >= maxAttempts {
			break
		}

		wait := delay
		if cfg.Jitter {
			wait = time.Duration(float64(delay) * rand.Float64())
		}

		select {
		case <-ctx.Done():
			return liberr.New(liberr.KindRetryAborted, liberr.CodeRetryAborted, "retry aborted", ctx.Err())
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return liberr.New(liberr.KindRetryExhausted, liberr.CodeRetryExhausted, "retry attempts exhausted", lastErr)
}

// RetryWithResult is the generic, value-returning counterpart of Retry.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Retry(ctx, cfg, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
