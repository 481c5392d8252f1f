package httpx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, 30*time.Second)

	assert.True(t, b.Allow())
	b.RecordFailure()
	b.RecordFailure()
	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.False(t, b.Allow())
}

func TestBreakerResetsAfterWindow(t *testing.T) {
	b := NewCircuitBreaker(3, 30*time.Second)
	now := time.Now()
	b.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	assert.False(t, b.Allow())

	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow())
	// window expiry closed the breaker, not just a one-off probe
	assert.True(t, b.Allow())
}

func TestBreakerSuccessCloses(t *testing.T) {
	b := NewCircuitBreaker(3, 30*time.Second)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	assert.True(t, b.Allow())
}
