package pilot

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 60)

	assert.True(t, cb.Allow())
	assert.Equal(t, "closed", cb.State())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.True(t, cb.Allow(), "below threshold stays closed")

	cb.RecordFailure()
	assert.Equal(t, "open", cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 60)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, "open", cb.State())

	cb.RecordSuccess()
	assert.Equal(t, "closed", cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(1, 60)

	cb.RecordFailure()
	assert.False(t, cb.Allow())

	// Age the last failure past the reset timeout
	atomic.StoreInt64(&cb.lastFailure, time.Now().Unix()-61)

	assert.True(t, cb.Allow())
	assert.Equal(t, "half-open", cb.State())

	// A failure in half-open swings it back open
	cb.RecordFailure()
	assert.Equal(t, "open", cb.State())
}

func TestCircuitBreaker_Metrics(t *testing.T) {
	cb := NewCircuitBreaker(5, 60)
	cb.RecordFailure()

	m := cb.Metrics()
	assert.Equal(t, "closed", m.State)
	assert.Equal(t, int64(1), m.Failures)
	assert.Equal(t, int64(5), m.Threshold)
	assert.NotZero(t, m.LastFailureUnix)
}
