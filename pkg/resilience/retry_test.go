package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseengine/pulse/pkg/errors"
)

func testPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		JitterSeed: 42,
		Retryable:  errors.IsTransient,
	}
}

func TestExecute_SucceedsAfterTransientFailures(t *testing.T) {
	executor := NewExecutor(testPolicy())

	attempts := 0
	err := executor.Execute(context.Background(), "fetch_tracker", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.NewNetworkError("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecute_PermanentErrorStopsImmediately(t *testing.T) {
	executor := NewExecutor(testPolicy())

	attempts := 0
	err := executor.Execute(context.Background(), "fetch_ledger", func(ctx context.Context) error {
		attempts++
		return errors.NewAuthenticationError("bad credentials")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	var classified *ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, "fetch_ledger", classified.Operation)
	assert.Equal(t, 1, classified.Attempts)
	assert.False(t, classified.Transient())
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
}

func TestExecute_ExhaustsRetriesOnTransientError(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 2
	executor := NewExecutor(policy)

	attempts := 0
	err := executor.Execute(context.Background(), "fetch_comms", func(ctx context.Context) error {
		attempts++
		return errors.NewUpstreamError("comms", "503 returned")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	var classified *ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, 3, classified.Attempts)
	assert.True(t, classified.Transient())
}

func TestExecute_CanceledContextShortCircuits(t *testing.T) {
	executor := NewExecutor(testPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := executor.Execute(ctx, "fetch_calendar", func(ctx context.Context) error {
		attempts++
		return errors.NewNetworkError("should not run")
	})

	require.Error(t, err)
	assert.Equal(t, 0, attempts)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))

	var classified *ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, 0, classified.Attempts)
}

func TestExecute_BackoffDelaysAreDeterministicForFixedSeed(t *testing.T) {
	collect := func() []time.Duration {
		var delays []time.Duration
		policy := testPolicy()
		policy.MaxRetries = 3
		policy.OnAttempt = func(operation string, attempt int, delay time.Duration, err error) {
			delays = append(delays, delay)
		}

		executor := NewExecutor(policy)
		_ = executor.Execute(context.Background(), "op", func(ctx context.Context) error {
			return errors.NewNetworkError("flaky")
		})
		return delays
	}

	first := collect()
	second := collect()

	require.Len(t, first, 3)
	assert.Equal(t, first, second)

	// Each delay is base*2^n plus up to 10% jitter, capped at MaxDelay.
	base := float64(time.Millisecond)
	for n, delay := range first {
		lower := base * float64(int(1)<<n)
		if lower > float64(10*time.Millisecond) {
			lower = float64(10 * time.Millisecond)
		}
		assert.GreaterOrEqual(t, float64(delay), lower)
		assert.Less(t, float64(delay), lower*1.1)
	}
}

func TestExecuteWithResult_ReturnsValue(t *testing.T) {
	executor := NewExecutor(testPolicy())

	calls := 0
	result, err := executor.ExecuteWithResult(context.Background(), "fetch", func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, errors.NewTimeoutError("fetch")
		}
		return "payload", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "payload", result)
	assert.Equal(t, 2, calls)
}
