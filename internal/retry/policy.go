package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy governs how a stage's transient failures are retried.
type Policy struct {
	InitialInterval    time.Duration `yaml:"initial_interval"`
	MaxInterval        time.Duration `yaml:"max_interval"`
	BackoffCoefficient float64       `yaml:"backoff_coefficient"`
	MaxAttempts        int           `yaml:"max_attempts"`
}

// Standard is the default policy for fast collaborator calls.
var Standard = Policy{
	InitialInterval:    500 * time.Millisecond,
	MaxInterval:        30 * time.Second,
	BackoffCoefficient: 2.0,
	MaxAttempts:        3,
}

// LongRunningExternalCall grows slower and allows more attempts. Used for
// rate-limited or latency-variable providers (model calls, image search).
var LongRunningExternalCall = Policy{
	InitialInterval:    2 * time.Second,
	MaxInterval:        2 * time.Minute,
	BackoffCoefficient: 1.5,
	MaxAttempts:        5,
}

// Delay computes the backoff before retry n (zero-based), jittered by a
// factor uniformly sampled from [0.5, 1.0].
func (p Policy) Delay(n int, jitter float64) time.Duration {
	if jitter < 0.5 || jitter > 1.0 {
		jitter = 1.0
	}
	base := float64(p.InitialInterval) * math.Pow(p.BackoffCoefficient, float64(n))
	if max := float64(p.MaxInterval); base > max {
		base = max
	}
	return time.Duration(base * jitter)
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = Standard.InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.BackoffCoefficient < 1 {
		p.BackoffCoefficient = Standard.BackoffCoefficient
	}
	return p
}

// Option customizes a Do loop (primarily for tests and metrics hooks).
type Option func(*retrier)

// WithJitter injects the jitter source. The function must return values in
// [0.5, 1.0].
func WithJitter(jitter func() float64) Option {
	return func(r *retrier) {
		if jitter != nil {
			r.jitter = jitter
		}
	}
}

// WithSleep replaces the delay wait, letting tests run without real time.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(r *retrier) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithOnRetry registers a callback invoked before each re-attempt with the
// upcoming attempt number (2-based) and the error being retried.
func WithOnRetry(onRetry func(attempt int, err error)) Option {
	return func(r *retrier) {
		if onRetry != nil {
			r.onRetry = onRetry
		}
	}
}

type retrier struct {
	jitter  func() float64
	sleep   func(context.Context, time.Duration) error
	onRetry func(attempt int, err error)
}

func defaultJitter() float64 {
	return 0.5 + rand.Float64()*0.5
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do invokes fn until it succeeds, returns a non-retryable error, or the
// policy's attempt limit is exhausted. The last error is returned verbatim;
// a cancelled context aborts the wait and surfaces ctx.Err().
func Do(ctx context.Context, p Policy, fn func(context.Context) error, opts ...Option) error {
	p = p.normalized()
	r := &retrier{jitter: defaultJitter, sleep: defaultSleep}
	for _, opt := range opts {
		opt(r)
	}
	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !Retryable(last) {
			return last
		}
		if attempt == p.MaxAttempts {
			break
		}
		if r.onRetry != nil {
			r.onRetry(attempt+1, last)
		}
		if err := r.sleep(ctx, p.Delay(attempt-1, r.jitter())); err != nil {
			return err
		}
	}
	return last
}
