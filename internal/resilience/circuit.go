package resilience

import (
	"sync"
	"time"

	"github.com/patronlib/librarystack/pkg/liberr"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements closed/open/half-open failure isolation in
// front of an unreliable provider call.
type CircuitBreaker struct {
	name        string
	maxFailures int
	resetAfter  time.Duration
	halfOpenCap int
	shouldCount func(error) bool

	mu               sync.Mutex
	state            CircuitState
	failures         int
	lastFailure      time.Time
	halfOpenInFlight int
}

// CircuitOption configures a CircuitBreaker.
type CircuitOption func(*CircuitBreaker)

func WithMaxFailures(n int) CircuitOption {
	return func(cb *CircuitBreaker) { cb.maxFailures = n }
}

func WithResetTimeout(d time.Duration) CircuitOption {
	return func(cb *CircuitBreaker) { cb.resetAfter = d }
}

func WithHalfOpenMaxAttempts(n int) CircuitOption {
	return func(cb *CircuitBreaker) { cb.halfOpenCap = n }
}

func WithShouldCount(fn func(error) bool) CircuitOption {
	return func(cb *CircuitBreaker) { cb.shouldCount = fn }
}

// NewCircuitBreaker creates a circuit breaker. Defaults: 5 failures,
// 30s reset timeout, 1 half-open admission.
func NewCircuitBreaker(name string, opts ...CircuitOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:        name,
		maxFailures: 5,
		resetAfter:  30 * time.Second,
		halfOpenCap: 1,
		state:       StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state, resolving a lazy open->half-open
// transition based on elapsed time.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

func (cb *CircuitBreaker) currentStateLocked() CircuitState {
	if cb.state == StateOpen && time.Since(cb.lastFailure) > cb.resetAfter {
		return StateHalfOpen
	}
	return cb.state
}

// Allow reports whether a call should be admitted right now, without
// executing it. Useful for callers that want to skip work entirely.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.currentStateLocked() {
	case StateOpen:
		return false
	case StateHalfOpen:
		return cb.halfOpenInFlight < cb.halfOpenCap
	default:
		return true
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = StateClosed
	cb.halfOpenInFlight = 0
}

func (cb *CircuitBreaker) recordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.shouldCount != nil && !cb.shouldCount(err) {
		return
	}
	cb.failures++
	cb.lastFailure = time.Now()
	cb.halfOpenInFlight = 0
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// Execute runs fn through the breaker. Returns a *liberr.LibraryError of
// KindCircuitBreakerOpen without calling fn if the circuit is open, or if
// half-open admissions are exhausted.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	state := cb.currentStateLocked()
	switch state {
	case StateOpen:
		cb.mu.Unlock()
		return liberr.New(liberr.KindCircuitBreakerOpen, liberr.CodeCircuitBreakerOpen, "circuit "+cb.name+" is open", nil)
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.halfOpenCap {
			cb.mu.Unlock()
			return liberr.New(liberr.KindCircuitBreakerOpen, liberr.CodeCircuitBreakerOpen, "circuit "+cb.name+" is half-open and saturated", nil)
		}
		cb.state = StateHalfOpen
		cb.halfOpenInFlight++
		cb.mu.Unlock()
	default:
		cb.mu.Unlock()
	}

	err := fn()
	if err != nil {
		cb.recordFailure(err)
		return err
	}
	cb.recordSuccess()
	return nil
}

// ExecuteWithResult is the generic, value-returning counterpart of Execute.
func ExecuteWithResult[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var result T
	err := cb.Execute(func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}
