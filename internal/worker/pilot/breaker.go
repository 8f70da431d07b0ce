package pilot

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// CircuitBreaker implements a simple circuit breaker pattern for CLI calls.
type CircuitBreaker struct {
	failures     int64 // Current failure count
	lastFailure  int64 // Unix timestamp of last failure
	threshold    int64 // Number of failures before opening
	resetTimeout int64 // Seconds to wait before trying again
	state        int32 // 0=closed, 1=open, 2=half-open
}

const (
	circuitClosed   int32 = 0
	circuitOpen     int32 = 1
	circuitHalfOpen int32 = 2
)

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(threshold int64, resetTimeout int64) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
	}
}

// Allow checks if a request should be allowed through.
func (cb *CircuitBreaker) Allow() bool {
	state := atomic.LoadInt32(&cb.state)
	if state == circuitClosed {
		return true
	}

	if state == circuitOpen {
		lastFail := atomic.LoadInt64(&cb.lastFailure)
		if time.Now().Unix()-lastFail > cb.resetTimeout {
			atomic.CompareAndSwapInt32(&cb.state, circuitOpen, circuitHalfOpen)
			return true
		}
		return false
	}

	// Half-open: allow one request through
	return true
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	atomic.StoreInt64(&cb.failures, 0)
	atomic.StoreInt32(&cb.state, circuitClosed)
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	failures := atomic.AddInt64(&cb.failures, 1)
	atomic.StoreInt64(&cb.lastFailure, time.Now().Unix())

	if failures >= cb.threshold {
		atomic.StoreInt32(&cb.state, circuitOpen)
		log.Warn().Int64("failures", failures).Msg("Circuit breaker opened - pilot CLI calls temporarily disabled")
	}
}

// State returns the current state as a string.
func (cb *CircuitBreaker) State() string {
	switch atomic.LoadInt32(&cb.state) {
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreakerMetrics contains metrics about the circuit breaker state.
type CircuitBreakerMetrics struct {
	State             string `json:"state"`
	Failures          int64  `json:"failures"`
	Threshold         int64  `json:"threshold"`
	ResetTimeoutSecs  int64  `json:"reset_timeout_secs"`
	LastFailureUnix   int64  `json:"last_failure_unix,omitempty"`
	SecondsUntilReset int64  `json:"seconds_until_reset,omitempty"`
}

// Metrics returns the current metrics of the circuit breaker.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	failures := atomic.LoadInt64(&cb.failures)
	lastFail := atomic.LoadInt64(&cb.lastFailure)
	state := cb.State()

	metrics := CircuitBreakerMetrics{
		State:            state,
		Failures:         failures,
		Threshold:        cb.threshold,
		ResetTimeoutSecs: cb.resetTimeout,
	}

	if lastFail > 0 {
		metrics.LastFailureUnix = lastFail
		if state == "open" {
			remaining := cb.resetTimeout - (time.Now().Unix() - lastFail)
			if remaining > 0 {
				metrics.SecondsUntilReset = remaining
			}
		}
	}

	return metrics
}
