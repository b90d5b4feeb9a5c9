package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func fullJitter() float64 { return 1.0 }

func TestDelayGrowsExponentiallyAndCaps(t *testing.T) {
	p := Policy{
		InitialInterval:    time.Second,
		MaxInterval:        10 * time.Second,
		BackoffCoefficient: 2.0,
		MaxAttempts:        10,
	}
	assert.Equal(t, time.Second, p.Delay(0, 1.0))
	assert.Equal(t, 2*time.Second, p.Delay(1, 1.0))
	assert.Equal(t, 4*time.Second, p.Delay(2, 1.0))
	assert.Equal(t, 8*time.Second, p.Delay(3, 1.0))
	// Capped at MaxInterval from here on.
	assert.Equal(t, 10*time.Second, p.Delay(4, 1.0))
	assert.Equal(t, 10*time.Second, p.Delay(9, 1.0))
}

func TestDelayAppliesJitterFactor(t *testing.T) {
	p := Standard
	full := p.Delay(0, 1.0)
	halved := p.Delay(0, 0.5)
	assert.Equal(t, full/2, halved)
	// Out-of-range jitter falls back to the undamped delay.
	assert.Equal(t, full, p.Delay(0, 7.0))
}

func TestDoRetriesExactlyMaxAttempts(t *testing.T) {
	for attempts := 1; attempts <= 5; attempts++ {
		attempts := attempts
		t.Run(fmt.Sprintf("max_attempts=%d", attempts), func(t *testing.T) {
			p := Policy{
				InitialInterval:    time.Millisecond,
				MaxInterval:        time.Millisecond,
				BackoffCoefficient: 2.0,
				MaxAttempts:        attempts,
			}
			calls := 0
			cause := Transient("stage", 503, errors.New("upstream unavailable"))
			err := Do(context.Background(), p, func(context.Context) error {
				calls++
				return cause
			}, WithSleep(noSleep), WithJitter(fullJitter))
			require.Error(t, err)
			assert.Equal(t, attempts, calls, "an always-failing retryable op runs exactly MaxAttempts times")
			// The last error propagates verbatim.
			assert.Same(t, cause, err)
		})
	}
}

func TestDoNeverRetriesValidationErrors(t *testing.T) {
	calls := 0
	cause := Validation("stage", errors.New("malformed config"))
	err := Do(context.Background(), Standard, func(context.Context) error {
		calls++
		return cause
	}, WithSleep(noSleep))
	require.Error(t, err)
	assert.Equal(t, 1, calls, "validation failures short-circuit")
	assert.Same(t, cause, err)
}

func TestDoStopsOnFirstSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Standard, func(context.Context) error {
		calls++
		if calls < 3 {
			return Transient("stage", 429, errors.New("rate limited"))
		}
		return nil
	}, WithSleep(noSleep))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoReportsRetriesViaCallback(t *testing.T) {
	var seen []int
	_ = Do(context.Background(), Policy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, BackoffCoefficient: 2, MaxAttempts: 3},
		func(context.Context) error {
			return Transient("stage", 529, errors.New("overloaded"))
		},
		WithSleep(noSleep),
		WithOnRetry(func(attempt int, err error) {
			seen = append(seen, attempt)
			require.Error(t, err)
		}))
	assert.Equal(t, []int{2, 3}, seen)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Standard, func(context.Context) error {
		calls++
		cancel()
		return Transient("stage", 503, errors.New("unavailable"))
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation aborts the backoff wait")
}

func TestNamedPoliciesDiffer(t *testing.T) {
	assert.Greater(t, LongRunningExternalCall.MaxAttempts, Standard.MaxAttempts)
	assert.Less(t, LongRunningExternalCall.BackoffCoefficient, Standard.BackoffCoefficient)
	assert.Greater(t, LongRunningExternalCall.MaxInterval, Standard.MaxInterval)
}
