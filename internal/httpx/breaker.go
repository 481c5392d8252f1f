package httpx

import (
	"sync"
	"time"
)

// CircuitBreaker counts consecutive failures and stops callers after a
// threshold, letting a probe through again once the reset window has
// elapsed. Each remote provider owns its own instance.
type CircuitBreaker struct {
	mu          sync.Mutex
	maxFailures int
	resetAfter  time.Duration
	failures    int
	lastFailure time.Time

	now func() time.Time
}

func NewCircuitBreaker(maxFailures int, resetAfter time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: maxFailures,
		resetAfter:  resetAfter,
		now:         time.Now,
	}
}

// Allow reports whether a call may proceed. When the reset window has
// passed since the last failure the breaker closes again.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.maxFailures {
		return true
	}
	if b.lastFailure.IsZero() {
		return true
	}
	if b.now().Sub(b.lastFailure) > b.resetAfter {
		b.failures = 0
		b.lastFailure = time.Time{}
		return true
	}
	return false
}

// RecordSuccess closes the breaker
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.lastFailure = time.Time{}
}

// RecordFailure counts one failure against the threshold
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
}
