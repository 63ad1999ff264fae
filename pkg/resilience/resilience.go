package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"mediconnect-backend/pkg/logger"
)

// ErrCircuitOpen is returned without calling the operation while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

// Value is the gauge reading for s, 0=closed 1=half_open 2=open
func (s CircuitBreakerState) Value() float64 {
	switch s {
	case CircuitBreakerHalfOpen:
		return 1
	case CircuitBreakerOpen:
		return 2
	}
	return 0
}

// StateObserver is told about every state change, typically a metrics gauge
type StateObserver func(name string, state CircuitBreakerState)

// CircuitBreaker stops calling a failing dependency for a cooldown period.
// After the cooldown one trial call is let through; it closes the breaker on
// success and reopens it on failure.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	observe   StateObserver
	now       func() time.Time

	mu                  sync.Mutex
	state               CircuitBreakerState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
}

// NewCircuitBreaker opens after threshold consecutive failures and stays
// open for cooldown. observe may be nil.
func NewCircuitBreaker(name string, threshold int, cooldown time.Duration, observe StateObserver) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		observe:   observe,
		now:       time.Now,
		state:     CircuitBreakerClosed,
	}
}

// Execute runs fn unless the breaker is open. Context cancellation by the
// caller is not counted as a dependency failure.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)
	switch {
	case err == nil:
		b.succeed()
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		b.release(trial)
	default:
		b.fail(err)
	}
	return err
}

func (b *CircuitBreaker) admit() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitBreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, ErrCircuitOpen
		}
		b.setStateLocked(CircuitBreakerHalfOpen)
		fallthrough
	case CircuitBreakerHalfOpen:
		if b.trialInFlight {
			return false, ErrCircuitOpen
		}
		b.trialInFlight = true
		return true, nil
	}
	return false, nil
}

func (b *CircuitBreaker) release(trial bool) {
	if !trial {
		return
	}
	b.mu.Lock()
	b.trialInFlight = false
	b.mu.Unlock()
}

func (b *CircuitBreaker) succeed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.trialInFlight = false
	if b.state != CircuitBreakerClosed {
		logger.Info("Circuit breaker closed", zap.String("breaker", b.name))
		b.setStateLocked(CircuitBreakerClosed)
	}
}

func (b *CircuitBreaker) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	b.trialInFlight = false

	if b.state == CircuitBreakerHalfOpen || b.consecutiveFailures >= b.threshold {
		if b.state != CircuitBreakerOpen {
			logger.Warn("Circuit breaker opened",
				zap.String("breaker", b.name),
				zap.Int("consecutive_failures", b.consecutiveFailures),
				zap.String("error_type", ClassifyError(err)),
				zap.Error(err))
		}
		b.openedAt = b.now()
		b.setStateLocked(CircuitBreakerOpen)
	}
}

func (b *CircuitBreaker) setStateLocked(state CircuitBreakerState) {
	if b.state == state {
		return
	}
	b.state = state
	if b.observe != nil {
		b.observe(b.name, state)
	}
}

// State returns the current circuit breaker state
func (b *CircuitBreaker) State() CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ClassifyError buckets errors for logs and metrics
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "dns"):
		return "dns"
	case strings.Contains(errMsg, "429") || strings.Contains(errMsg, "rate limit"):
		return "rate_limited"
	case strings.Contains(errMsg, "401") || strings.Contains(errMsg, "unauthorized"):
		return "auth"
	case strings.Contains(errMsg, "circuit breaker"):
		return "circuit_breaker"
	default:
		return "unknown"
	}
}
