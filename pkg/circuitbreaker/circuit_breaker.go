// Package circuitbreaker stops calls to a failing dependency for a while so
// that callers fail fast instead of waiting on timeouts.
package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the state name used in logs and statistics
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	// Consecutive failures before opening the circuit
	FailureThreshold int64

	// Successes needed in half-open state to close the circuit
	SuccessThreshold int64

	// How long the circuit stays open before a trial call
	Timeout time.Duration

	// Cap of the open period when it grows with repeated trips
	MaxTimeout time.Duration
}

// DefaultConfig returns default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Timeout:          30 * time.Second,
		MaxTimeout:       5 * time.Minute,
	}
}

// Statistics is a snapshot of breaker activity
type Statistics struct {
	State            string    `json:"state"`
	TotalRequests    int64     `json:"total_requests"`
	FailedRequests   int64     `json:"failed_requests"`
	RejectedRequests int64     `json:"rejected_requests"`
	StateTransitions int64     `json:"state_transitions"`
	LastFailureTime  time.Time `json:"last_failure_time"`
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name          string
	logger        *logrus.Entry
	config        Config
	state         State
	failures      int64
	successes     int64
	trips         int64
	nextAttempt   time.Time
	stats         Statistics
	onStateChange func(name string, from State, to State)
	now           func() time.Time
	mutex         sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker. Zero config fields take
// their defaults.
func NewCircuitBreaker(name string, config Config, logger *logrus.Logger) *CircuitBreaker {
	defaults := DefaultConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxTimeout < config.Timeout {
		config.MaxTimeout = config.Timeout
	}

	return &CircuitBreaker{
		name:   name,
		logger: logger.WithField("circuit_breaker", name),
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Execute runs fn unless the circuit is open, in which case it returns an
// *OpenError without calling fn
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allowRequest() {
		return &OpenError{CircuitName: cb.name, RetryAt: cb.retryAt()}
	}

	if err := fn(ctx); err != nil {
		cb.recordFailure(err)
		return err
	}

	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Before(cb.nextAttempt) {
			cb.stats.RejectedRequests++
			return false
		}
		cb.setState(StateHalfOpen)
	}
	cb.stats.TotalRequests++
	return true
}

func (cb *CircuitBreaker) retryAt() time.Time {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.nextAttempt
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures = 0
	if cb.state != StateHalfOpen {
		return
	}
	cb.successes++
	if cb.successes >= cb.config.SuccessThreshold {
		cb.trips = 0
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) recordFailure(err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.stats.FailedRequests++
	cb.stats.LastFailureTime = cb.now()

	// one failed trial call reopens the circuit
	if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
		cb.trips++
		cb.setState(StateOpen)
	}

	cb.logger.WithError(err).WithFields(logrus.Fields{
		"failures": cb.failures,
		"state":    cb.state.String(),
	}).Debug("Circuit breaker recorded failure")
}

// setState changes the state; the caller holds the mutex
func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState

	switch newState {
	case StateOpen:
		// the open period doubles with every trip that was not followed by a close
		timeout := cb.config.Timeout << uint(min(cb.trips-1, 10))
		if timeout > cb.config.MaxTimeout || timeout <= 0 {
			timeout = cb.config.MaxTimeout
		}
		cb.nextAttempt = cb.now().Add(timeout)
	case StateHalfOpen:
		cb.successes = 0
	case StateClosed:
		cb.failures = 0
		cb.nextAttempt = time.Time{}
	}
	cb.stats.StateTransitions++

	cb.logger.WithFields(logrus.Fields{
		"from_state": oldState.String(),
		"to_state":   newState.String(),
	}).Info("Circuit breaker state changed")

	if cb.onStateChange != nil {
		go cb.onStateChange(cb.name, oldState, newState)
	}
}

// GetState returns the current circuit breaker state
func (cb *CircuitBreaker) GetState() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// GetStatistics returns a snapshot of the breaker counters
func (cb *CircuitBreaker) GetStatistics() Statistics {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	stats := cb.stats
	stats.State = cb.state.String()
	return stats
}

// Reset closes the circuit and clears the failure history
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.trips = 0
	cb.setState(StateClosed)
	cb.failures = 0
	cb.stats = Statistics{}
}

// SetStateChangeCallback sets a callback for state changes
func (cb *CircuitBreaker) SetStateChangeCallback(callback func(name string, from State, to State)) {
	cb.mutex.Lock()
	cb.onStateChange = callback
	cb.mutex.Unlock()
}

// GetName returns the circuit breaker name
func (cb *CircuitBreaker) GetName() string {
	return cb.name
}

// IsOpen returns true if the circuit is open
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.GetState() == StateOpen
}
