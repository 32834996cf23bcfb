// Package circuitbreaker guards calls to the out-of-process
// BenchmarkAdapter worker. Repeated container-level failures (a crashed
// Docker daemon, a wedged harness) should stop being retried immediately
// rather than hammering a dead worker for the remainder of a run. Unlike
// a provider-agnostic trip counter, this breaker classifies failures
// against the adapter-facing slice of spec §7's error taxonomy
// ("infrastructure tool error" vs. an ordinary adapter-reported failure)
// and only trips on the class that actually means the worker itself,
// not one bug instance, is unhealthy.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FailureClass distinguishes why a benchmark-worker RPC failed.
type FailureClass int

const (
	// ClassNone is reported by callers that did not fail.
	ClassNone FailureClass = iota
	// ClassInfrastructure covers errors that mean the worker process or
	// its container runtime is gone, not that this one bug instance is
	// misbehaving: deadline exceeded, Unavailable, resource exhaustion,
	// or an aborted stream. These are the only classes that advance the
	// trip counter — spec §7's "infrastructure tool error" bucket.
	ClassInfrastructure
	// ClassAdapter covers an RPC that completed but reported an ordinary
	// domain-level error understood by the caller (e.g. a malformed
	// envelope for this instance). These never trip the breaker.
	ClassAdapter
)

// ClassifyError maps a gRPC call error to a FailureClass. Call with a
// nil error to get ClassNone.
func ClassifyError(err error) FailureClass {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassInfrastructure
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return ClassInfrastructure
	default:
		return ClassAdapter
	}
}

// State represents the state of a circuit breaker.
type State int

const (
	Closed   State = iota // Normal operation
	Open                  // Failing, reject calls
	HalfOpen              // Testing recovery
)

// String returns a human-readable label for the circuit state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker trips after failureThreshold consecutive
// ClassInfrastructure failures and rejects calls until recoveryTimeout
// has elapsed, at which point it allows one probe call through.
// ClassAdapter failures are counted for observability but never trip the
// breaker: a worker correctly reporting "this instance failed" is not a
// worker that needs to be avoided for the rest of the run.
type CircuitBreaker struct {
	mu               sync.RWMutex
	state            State
	infraFailures    int
	adapterFailures  int
	successCount     int
	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration
	lastFailureTime  time.Time
	lastClass        FailureClass
}

// New creates a circuit breaker with the given infrastructure-failure
// threshold.
func New(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		state:            Closed,
		failureThreshold: failureThreshold,
		successThreshold: 1,
		recoveryTimeout:  recoveryTimeout,
	}
}

// Allow reports whether a call should be let through.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return true
	case Open:
		if time.Since(cb.lastFailureTime) >= cb.recoveryTimeout {
			cb.state = HalfOpen
			cb.successCount = 0
			return true
		}
		return false
	case HalfOpen:
		return true
	}
	return false
}

// RecordSuccess records a successful call, clearing the consecutive
// infrastructure-failure streak.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.infraFailures = 0
	if cb.state == HalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = Closed
		}
	}
}

// RecordFailure records a failed call under the given classification.
// Only ClassInfrastructure advances the trip counter; a ClassAdapter
// failure is tallied into adapterFailures and otherwise left alone.
func (cb *CircuitBreaker) RecordFailure(class FailureClass) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastClass = class
	if class != ClassInfrastructure {
		cb.adapterFailures++
		return
	}

	cb.infraFailures++
	cb.lastFailureTime = time.Now()

	if cb.state == HalfOpen {
		cb.state = Open
		return
	}
	if cb.infraFailures >= cb.failureThreshold {
		cb.state = Open
	}
}

// CurrentState returns the current circuit state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Counts returns the consecutive-infrastructure-failure count and the
// lifetime adapter-failure count, for telemetry.
func (cb *CircuitBreaker) Counts() (infra, adapterCount int) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.infraFailures, cb.adapterFailures
}

// Reset forces the circuit back to closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = Closed
	cb.infraFailures = 0
	cb.adapterFailures = 0
	cb.successCount = 0
}
