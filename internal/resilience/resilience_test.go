package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patronlib/librarystack/pkg/liberr"
)

func TestRetry_SucceedsWithoutRetryingOnFirstSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAndWrapsLastError(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	sentinel := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, liberr.KindRetryExhausted, liberr.Of(err))
	assert.ErrorIs(t, err, sentinel)
}

func TestRetry_StopsWhenShouldRetryReturnsFalse(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		ShouldRetry:  func(error) bool { return false },
	}
	calls := 0
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_AbortsOnContextCancellation(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, cfg, func(ctx context.Context) error {
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.Equal(t, liberr.KindRetryAborted, liberr.Of(err))
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", WithMaxFailures(3), WithResetTimeout(time.Second))

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("error") })
	}
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(func() error { return nil })
	require.Error(t, err)
	assert.Equal(t, liberr.KindCircuitBreakerOpen, liberr.Of(err))
}

func TestCircuitBreaker_RecoversAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker("test", WithMaxFailures(1), WithResetTimeout(10*time.Millisecond))

	_ = cb.Execute(func() error { return errors.New("error") })
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenCapLimitsConcurrentProbes(t *testing.T) {
	cb := NewCircuitBreaker("test", WithMaxFailures(1), WithResetTimeout(5*time.Millisecond), WithHalfOpenMaxAttempts(1))
	_ = cb.Execute(func() error { return errors.New("error") })
	time.Sleep(10 * time.Millisecond)

	release := make(chan struct{})
	go func() {
		_ = cb.Execute(func() error {
			<-release
			return nil
		})
	}()
	time.Sleep(5 * time.Millisecond)

	err := cb.Execute(func() error { return nil })
	require.Error(t, err)
	assert.Equal(t, liberr.KindCircuitBreakerOpen, liberr.Of(err))
	close(release)
}

func TestCircuitBreaker_ShouldCountFiltersIgnoredErrors(t *testing.T) {
	ignored := errors.New("ignore me")
	cb := NewCircuitBreaker("test",
		WithMaxFailures(1),
		WithShouldCount(func(err error) bool { return !errors.Is(err, ignored) }),
	)
	_ = cb.Execute(func() error { return ignored })
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecuteWithResult_PropagatesValueAndError(t *testing.T) {
	cb := NewCircuitBreaker("test")
	val, err := ExecuteWithResult(cb, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, val)
}

func TestWithTimeout_ReturnsResultWhenFastEnough(t *testing.T) {
	val, err := WithTimeout(context.Background(), 50*time.Millisecond, func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, val)
}

func TestWithTimeout_ReturnsOperationTimeoutOnExpiry(t *testing.T) {
	_, err := WithTimeout(context.Background(), 5*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.Error(t, err)
	assert.Equal(t, liberr.KindOperationTimeout, liberr.Of(err))
}

func TestWithTimeout_ReturnsAbortedWhenOuterContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WithTimeout(ctx, 50*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.Error(t, err)
	assert.Equal(t, liberr.KindRetryAborted, liberr.Of(err))
}

func TestHealthMonitor_ClassifiesByConsecutiveFailures(t *testing.T) {
	hm := NewHealthMonitor(2, 4)
	assert.Equal(t, HealthHealthy, hm.Status())

	hm.RecordFailure()
	hm.RecordFailure()
	assert.Equal(t, HealthDegraded, hm.Status())

	hm.RecordFailure()
	hm.RecordFailure()
	assert.Equal(t, HealthUnhealthy, hm.Status())

	hm.RecordSuccess()
	assert.Equal(t, HealthHealthy, hm.Status())
}

func TestHealthMonitor_SnapshotAccumulatesTotals(t *testing.T) {
	hm := NewHealthMonitor(3, 8)
	hm.RecordSuccess()
	hm.RecordFailure()
	hm.RecordFailure()

	calls, failures, consecutive := hm.Snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, failures)
	assert.Equal(t, 2, consecutive)
}
