package toolrpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed indicates the circuit is allowing requests to pass through.
	CircuitClosed CircuitState = iota
	// CircuitOpen indicates the circuit is rejecting requests due to failures.
	CircuitOpen
	// CircuitHalfOpen indicates the circuit is probing recovery.
	CircuitHalfOpen
)

// String returns a string representation of the circuit state.
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig parameterizes a circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultBreakerConfig returns the breaker policy used for tool servers.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 30 * time.Second}
}

// CircuitBreaker gates calls to one tool server. All state transitions happen
// under a single mutex; callers observing Open are rejected without touching
// the shared counters, and after the cooldown at most one probe is in flight
// until the breaker closes again.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failures        int
	successes       int
	openedAt        time.Time
	lastStateChange time.Time
	probeInFlight   bool

	totalCalls     int64
	totalSuccesses int64
	totalFailures  int64
}

// BreakerStats is a snapshot of breaker counters.
type BreakerStats struct {
	Name            string
	State           string
	TotalCalls      int64
	TotalSuccesses  int64
	TotalFailures   int64
	LastStateChange time.Time
}

// NewCircuitBreaker creates a breaker for the named tool server.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{name: name, cfg: cfg, state: CircuitClosed, lastStateChange: time.Now()}
}

// Execute runs fn if the breaker admits the call, recording the outcome.
// When the breaker is open it returns domain.ErrCircuitOpen without any I/O.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.beforeCall()
	if err != nil {
		return err
	}
	callErr := fn(ctx)
	cb.afterCall(probe, callErr)
	return callErr
}

func (cb *CircuitBreaker) beforeCall() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.openedAt) < cb.cfg.Timeout {
			return false, fmt.Errorf("breaker %s: %w", cb.name, domain.ErrCircuitOpen)
		}
		cb.transition(CircuitHalfOpen)
		cb.successes = 0
		cb.probeInFlight = true
		cb.totalCalls++
		return true, nil
	case CircuitHalfOpen:
		if cb.probeInFlight {
			return false, fmt.Errorf("breaker %s: %w", cb.name, domain.ErrCircuitOpen)
		}
		cb.probeInFlight = true
		cb.totalCalls++
		return true, nil
	default:
		cb.totalCalls++
		return false, nil
	}
}

func (cb *CircuitBreaker) afterCall(probe bool, callErr error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probeInFlight = false
	}
	if callErr == nil {
		cb.totalSuccesses++
		switch cb.state {
		case CircuitHalfOpen:
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				cb.transition(CircuitClosed)
				cb.failures = 0
				slog.Info("circuit breaker closed after recovery",
					slog.String("breaker", cb.name),
					slog.Int("successes", cb.successes))
			}
		case CircuitClosed:
			cb.failures = 0
		}
		return
	}

	cb.totalFailures++
	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(CircuitOpen)
			cb.openedAt = time.Now()
			slog.Warn("circuit breaker opened",
				slog.String("breaker", cb.name),
				slog.Int("failures", cb.failures),
				slog.Int("threshold", cb.cfg.FailureThreshold))
		}
	case CircuitHalfOpen:
		cb.transition(CircuitOpen)
		cb.openedAt = time.Now()
		slog.Warn("circuit breaker reopened after failed probe",
			slog.String("breaker", cb.name))
	}
}

// transition must be called with the mutex held.
func (cb *CircuitBreaker) transition(s CircuitState) {
	cb.state = s
	cb.lastStateChange = time.Now()
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker back to closed with cleared counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(CircuitClosed)
	cb.failures = 0
	cb.successes = 0
	cb.probeInFlight = false
}

// Stats returns a snapshot of breaker counters.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		Name:            cb.name,
		State:           cb.state.String(),
		TotalCalls:      cb.totalCalls,
		TotalSuccesses:  cb.totalSuccesses,
		TotalFailures:   cb.totalFailures,
		LastStateChange: cb.lastStateChange,
	}
}
