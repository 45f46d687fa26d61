package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pulseengine/pulse/pkg/errors"
	"github.com/pulseengine/pulse/pkg/logging"
)

// Policy holds configuration for retry logic around external source calls.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt, so a
	// call is attempted at most MaxRetries+1 times.
	MaxRetries int
	// BaseDelay is the backoff base: delay before retry n is
	// BaseDelay * 2^n (n starting at 0), capped at MaxDelay.
	BaseDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// JitterSeed seeds the jitter RNG. Jitter is uniform in
	// [0, 0.1*delay), so a fixed seed makes the delay sequence
	// reproducible in tests. Zero seeds from the clock.
	JitterSeed int64
	// Retryable decides if an error is transient and worth retrying
	Retryable func(error) bool
	// OnAttempt is called after each failed attempt, before the delay
	OnAttempt func(operation string, attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns a default retry policy
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Retryable:  errors.IsTransient,
	}
}

// ClassifiedError is what an exhausted or non-retryable call returns. A raw
// transport fault never escapes the executor.
type ClassifiedError struct {
	Operation string
	Attempts  int
	Err       error
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("operation %s failed after %d attempt(s): %v", e.Operation, e.Attempts, e.Err)
}

// Unwrap returns the last underlying error
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Transient reports whether the final error was still classified transient
// (retries exhausted) rather than permanent.
func (e *ClassifiedError) Transient() bool {
	return errors.IsTransient(e.Err)
}

// Executor executes operations with bounded, deterministic retry and
// exponential backoff.
type Executor struct {
	policy Policy
	logger *logging.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewExecutor creates a new executor with the given policy
func NewExecutor(policy Policy) *Executor {
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 200 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.Retryable == nil {
		policy.Retryable = errors.IsTransient
	}

	seed := policy.JitterSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Executor{
		policy: policy,
		logger: logging.GetLogger(),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Execute runs the call with retry logic. Transient failures are retried
// with exponential backoff up to MaxRetries times; permanent failures stop
// immediately. The returned error is always a *ClassifiedError carrying the
// operation name and attempt count.
func (e *Executor) Execute(ctx context.Context, operation string, call func(context.Context) error) error {
	var lastErr error
	maxAttempts := e.policy.MaxRetries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return &ClassifiedError{
				Operation: operation,
				Attempts:  attempt - 1,
				Err:       errors.NewTimeoutError(operation).WithCause(ctx.Err()),
			}
		}

		err := call(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.Info("Operation succeeded after retry",
					"operation", operation,
					"attempt", attempt,
				)
			}
			return nil
		}

		lastErr = err

		if !e.policy.Retryable(err) {
			e.logger.Debug("Error is not retryable, stopping",
				"operation", operation,
				"error", err.Error(),
				"attempt", attempt,
			)
			return &ClassifiedError{Operation: operation, Attempts: attempt, Err: err}
		}

		if attempt == maxAttempts {
			break
		}

		delay := e.nextDelay(attempt - 1)

		e.logger.Debug("Operation failed, retrying",
			"operation", operation,
			"error", err.Error(),
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
		)

		if e.policy.OnAttempt != nil {
			e.policy.OnAttempt(operation, attempt, delay, err)
		}

		select {
		case <-ctx.Done():
			return &ClassifiedError{
				Operation: operation,
				Attempts:  attempt,
				Err:       errors.NewTimeoutError(operation).WithCause(ctx.Err()),
			}
		case <-time.After(delay):
		}
	}

	e.logger.Error("Operation failed after all retry attempts",
		"operation", operation,
		"error", lastErr.Error(),
		"attempts", maxAttempts,
	)

	return &ClassifiedError{Operation: operation, Attempts: maxAttempts, Err: lastErr}
}

// ExecuteWithResult runs a call that produces a result, with the same retry
// semantics as Execute.
func (e *Executor) ExecuteWithResult(ctx context.Context, operation string, call func(context.Context) (interface{}, error)) (interface{}, error) {
	var result interface{}
	err := e.Execute(ctx, operation, func(ctx context.Context) error {
		var err error
		result, err = call(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// nextDelay computes the backoff delay for the given retry index (0-based).
func (e *Executor) nextDelay(retry int) time.Duration {
	delay := float64(e.policy.BaseDelay) * math.Pow(2, float64(retry))

	if delay > float64(e.policy.MaxDelay) {
		delay = float64(e.policy.MaxDelay)
	}

	e.mu.Lock()
	jitter := e.rng.Float64() * 0.1 * delay
	e.mu.Unlock()

	return time.Duration(delay + jitter)
}
