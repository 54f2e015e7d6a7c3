// Package resilience provides fault-tolerance primitives: a circuit breaker,
// exponential-backoff retry, and a context-based timeout wrapper.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen reports that a breaker is rejecting calls without trying
// them. Callers detect it with errors.Is.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is a breaker phase: closed (normal traffic), open (rejecting), or
// half-open (probing whether the downstream recovered).
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig controls failure thresholds and recovery timing.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips the
	// circuit open.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before allowing a
	// half-open probe.
	ResetTimeout time.Duration
	// HalfOpenMaxRequests caps in-flight probes while half-open.
	HalfOpenMaxRequests int
	// OnStateChange, if set, is invoked on every transition. It runs on the
	// goroutine that caused the transition and must not call back into the
	// breaker.
	OnStateChange func(name string, from, to State)
}

const (
	defaultFailureThreshold    = 5
	defaultResetTimeout        = 30 * time.Second
	defaultHalfOpenMaxRequests = 1
)

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = defaultResetTimeout
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = defaultHalfOpenMaxRequests
	}
	return c
}

// CircuitBreaker rejects calls outright once too many consecutive failures
// accumulate, giving the downstream service room to recover. After
// ResetTimeout it admits a limited number of probes; one probe success
// closes the circuit again.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	failures    int // consecutive, cleared on success
	lastFailure time.Time
	probes      int // requests admitted while half-open
}

// NewCircuitBreaker returns a closed breaker. Zero fields in cfg take the
// package defaults.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn unless the breaker is rejecting calls, feeding the result
// back into the failure count. fn's own error comes back untouched.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// State reports the breaker's current phase.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
	cb.failures = 0
	cb.probes = 0
}

// allow decides whether a call may proceed. A nil return must be followed
// by a record call.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		remaining := cb.cfg.ResetTimeout - time.Since(cb.lastFailure)
		if remaining > 0 {
			return fmt.Errorf("%w: %s rejects calls for another %v", ErrCircuitOpen, cb.name, remaining)
		}
		cb.transition(StateHalfOpen)
		cb.probes = 0
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			return fmt.Errorf("%w: %s probe limit reached", ErrCircuitOpen, cb.name)
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.transition(StateClosed)
			cb.failures = 0
			cb.probes = 0
		}
		return
	}

	cb.lastFailure = time.Now()
	cb.failures++
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.logger.Warn("failure threshold reached", "failures", cb.failures)
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.logger.Warn("probe failed while half-open")
		cb.transition(StateOpen)
	}
}

// transition moves to a new state, firing the hook and logging. Callers
// hold cb.mu.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
	cb.logger.Info("state changed", "from", from, "to", to)
}
