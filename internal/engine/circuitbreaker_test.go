package engine

import (
	"testing"
	"time"

	"github.com/ait42/orchestrator/internal/common/logger"
)

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, 1, logger.Default())

	if !cb.CanExecute() {
		t.Fatal("breaker should start closed and executable")
	}
	cb.RecordFailure()
	if cb.State() != CircuitClosed {
		t.Fatalf("expected still closed after 1 failure, got %v", cb.State())
	}
	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after maxFailures, got %v", cb.State())
	}
	if cb.CanExecute() {
		t.Error("expected CanExecute=false immediately after opening")
	}
}

func TestCircuitBreakerRecoversAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond, 1, logger.Default())
	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}

	time.Sleep(20 * time.Millisecond)
	if !cb.CanExecute() {
		t.Fatal("expected CanExecute=true once resetTimeout has elapsed")
	}

	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after successful half-open test, got %v", cb.State())
	}
}

func TestCircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond, 2, logger.Default())
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	cb.CanExecute()

	cb.RecordSuccess()
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after 1 of 2 required successes, got %v", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("expected reopened after half-open failure, got %v", cb.State())
	}
}
