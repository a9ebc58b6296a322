package engine

import (
	"sync"
	"time"

	"github.com/ait42/orchestrator/internal/common/logger"
	"go.uber.org/zap"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	// CircuitClosed is normal operation: the role may be relaunched.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the role has failed too many times in this run
	// and should not be relaunched until resetTimeout has elapsed.
	CircuitOpen
	// CircuitHalfOpen is a trial period after resetTimeout: a handful of
	// successes close the circuit again, any failure reopens it.
	CircuitHalfOpen
)

// CircuitBreaker governs when a repeatedly failing agent role stops being
// relaunched within a single run. It is scoped to one run; engines create a
// fresh breaker per role per run rather than sharing one across runs.
type CircuitBreaker struct {
	mu sync.RWMutex

	maxFailures   int
	resetTimeout  time.Duration
	halfOpenTests int

	state            CircuitState
	failures         int
	lastFailureTime  time.Time
	consecutiveTests int

	logger *logger.Logger
}

// NewCircuitBreaker creates a breaker that opens after maxFailures
// consecutive failures, waits resetTimeout before trialing recovery, and
// requires halfOpenTests consecutive successes to fully close again.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, halfOpenTests int, log *logger.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:   maxFailures,
		resetTimeout:  resetTimeout,
		halfOpenTests: halfOpenTests,
		state:         CircuitClosed,
		logger:        log.WithFields(zap.String("component", "circuit-breaker")),
	}
}

// CanExecute reports whether a relaunch attempt is currently permitted.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		return time.Since(cb.lastFailureTime) >= cb.resetTimeout
	default:
		return false
	}
}

// RecordSuccess records a successful relaunch.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		// A success recorded while open (e.g. a caller bypassed
		// CanExecute after resetTimeout) enters the half-open trial.
		cb.state = CircuitHalfOpen
		cb.consecutiveTests = 0
		fallthrough
	case CircuitHalfOpen:
		cb.consecutiveTests++
		if cb.consecutiveTests >= cb.halfOpenTests {
			cb.state = CircuitClosed
			cb.failures = 0
			cb.consecutiveTests = 0
			cb.logger.Info("circuit closed after successful recovery tests")
		}
	case CircuitClosed:
		cb.failures = 0
	}
}

// RecordFailure records a failed relaunch.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
			cb.logger.Warn("circuit opened", zap.Int("failures", cb.failures))
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.consecutiveTests = 0
		cb.logger.Warn("circuit reopened after test failure")
	}
}

// State returns the current state, mostly for observability/tests.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}
