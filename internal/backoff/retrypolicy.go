// Package backoff provides retry policies for step re-execution.
package backoff

import (
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrRetriesExhausted is returned when the maximum number of retries has been reached.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy defines the interface for retry policies.
type RetryPolicy interface {
	// ComputeNextInterval computes the duration to wait before the next
	// retry, or an error if no more retries should be attempted.
	ComputeNextInterval(retryCount int, elapsedTime time.Duration, err error) (time.Duration, error)
}

const (
	defaultBackoffFactor = 2.0
	defaultMaxInterval   = 5 * time.Minute
	noMaximumAttempts    = 0
)

// ExponentialBackoffPolicy is a retry policy that implements exponential
// backoff with optional jitter.
type ExponentialBackoffPolicy struct {
	// InitialInterval is the interval before the first retry.
	InitialInterval time.Duration
	// BackoffFactor is the factor by which the interval increases after each retry.
	BackoffFactor float64
	// MaxInterval is the cap on the computed interval.
	MaxInterval time.Duration
	// MaxRetries is the maximum number of retries allowed. 0 means unlimited.
	MaxRetries int
	// JitterFraction adds up to the given fraction of the interval as
	// random jitter. 0 disables jitter.
	JitterFraction float64
}

// NewExponentialBackoffPolicy creates an ExponentialBackoffPolicy with
// the package defaults (factor 2, capped at 5 minutes, unlimited retries).
func NewExponentialBackoffPolicy(initialInterval time.Duration) *ExponentialBackoffPolicy {
	return &ExponentialBackoffPolicy{
		InitialInterval: initialInterval,
		BackoffFactor:   defaultBackoffFactor,
		MaxInterval:     defaultMaxInterval,
		MaxRetries:      noMaximumAttempts,
	}
}

// ComputeNextInterval computes the next retry interval using exponential backoff.
func (p *ExponentialBackoffPolicy) ComputeNextInterval(retryCount int, _ time.Duration, _ error) (time.Duration, error) {
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}

	interval := float64(p.InitialInterval) * math.Pow(p.BackoffFactor, float64(retryCount))
	if interval > float64(p.MaxInterval) {
		interval = float64(p.MaxInterval)
	}
	if p.JitterFraction > 0 {
		interval += rand.Float64() * p.JitterFraction * interval
	}

	return time.Duration(interval), nil
}

// ConstantBackoffPolicy is a retry policy that uses a constant interval.
type ConstantBackoffPolicy struct {
	// Interval is the constant interval between retries.
	Interval time.Duration
	// MaxRetries is the maximum number of retries allowed. 0 means unlimited.
	MaxRetries int
}

// ComputeNextInterval returns a constant interval for each retry.
func (p *ConstantBackoffPolicy) ComputeNextInterval(retryCount int, _ time.Duration, _ error) (time.Duration, error) {
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}
	return p.Interval, nil
}

// Retrier manages the state of retry operations for a single subject.
type Retrier struct {
	policy     RetryPolicy
	retryCount int
	startTime  time.Time
	mu         sync.Mutex
}

// NewRetrier creates a new Retrier with the specified retry policy.
func NewRetrier(policy RetryPolicy) *Retrier {
	return &Retrier{policy: policy}
}

// Next computes the next retry interval and updates internal state.
func (r *Retrier) Next(err error) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.startTime.IsZero() {
		r.startTime = time.Now()
	}

	interval, computeErr := r.policy.ComputeNextInterval(r.retryCount, time.Since(r.startTime), err)
	if computeErr != nil {
		return 0, computeErr
	}
	r.retryCount++
	return interval, nil
}

// Reset resets the retrier to its initial state.
func (r *Retrier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryCount = 0
	r.startTime = time.Time{}
}
