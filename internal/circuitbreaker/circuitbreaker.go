// Package circuitbreaker stops calling a failing dependency for a while
// after repeated failures, then probes it before closing again.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/offersplus/backend/internal/metrics"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	name             string
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	isFailure        func(error) bool
	now              func() time.Time
}

// Config holds circuit breaker configuration.
type Config struct {
	Name             string
	FailureThreshold int           // failures before opening
	SuccessThreshold int           // half-open successes needed to close
	Timeout          time.Duration // open time before a half-open probe
	// IsFailure decides which errors count against the breaker. Errors it
	// rejects are returned to the caller but recorded as successes.
	// Defaults to every non-nil error except context cancellation.
	IsFailure func(error) bool
	Now       func() time.Time
}

// New creates a circuit breaker.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cb := &CircuitBreaker{
		state:            StateClosed,
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		isFailure:        cfg.IsFailure,
		now:              cfg.Now,
	}
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(float64(StateClosed))
	return cb
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Execute runs fn if the breaker allows it, handing ctx through.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	if err != nil && cb.isFailure(err) {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.timeout {
			cb.setState(StateHalfOpen)
			cb.successCount = 0
			return true
		}
	}
	return false
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()
	cb.successCount = 0

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.trip()
		}
	case StateHalfOpen:
		cb.trip()
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.failureCount = 0
			cb.successCount = 0
			cb.setState(StateClosed)
		}
	}
}

// trip opens the circuit; mu must be held.
func (cb *CircuitBreaker) trip() {
	cb.failureCount = 0
	cb.setState(StateOpen)
	metrics.CircuitBreakerTrips.WithLabelValues(cb.name).Inc()
}

func (cb *CircuitBreaker) setState(s State) {
	cb.state = s
	metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(float64(s))
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the breaker's metric label.
func (cb *CircuitBreaker) Name() string { return cb.name }
