// Package guard provides the cross-cutting failure protections used by
// every extraction path: a circuit breaker and a memory pressure check.
package guard

import (
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operation state.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects all requests.
	CircuitOpen
	// CircuitHalfOpen allows requests again after the cooldown.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
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

// Failure weights. Timeouts count toward the threshold, but less
// aggressively than real failures.
const (
	WeightTimeout = 1
	WeightFailure = 2
)

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           // weighted failures before opening (default 10 = 5 real failures)
	Cooldown         time.Duration // time before half-opening (default 30s)
}

// Breaker is a consecutive-failure circuit breaker. A single success in
// any state closes it fully and resets the counter.
type Breaker struct {
	mu sync.Mutex

	state     CircuitState
	failures  int
	lastError time.Time

	threshold int
	cooldown  time.Duration
}

// NewBreaker creates a circuit breaker, applying defaults for zero values.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5 * WeightFailure
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		state:     CircuitClosed,
		threshold: cfg.FailureThreshold,
		cooldown:  cfg.Cooldown,
	}
}

// Allow reports whether a guarded operation may proceed. While open it
// returns apperr.ErrCircuitOpen until the cooldown elapses, at which
// point the breaker half-opens and resets the counter.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitOpen {
		if time.Since(b.lastError) < b.cooldown {
			return apperr.ErrCircuitOpen
		}
		b.state = CircuitHalfOpen
		b.failures = 0
	}
	return nil
}

// Success records a successful call, closing the breaker and resetting
// the consecutive-failure count.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failures = 0
}

// Failure records a failed call with the given weight (WeightTimeout or
// WeightFailure). The breaker opens once the weighted count reaches the
// threshold.
func (b *Breaker) Failure(weight int) {
	if weight <= 0 {
		weight = WeightFailure
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures += weight
	b.lastError = time.Now()
	if b.failures >= b.threshold {
		b.state = CircuitOpen
	}
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current weighted consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker. Primarily useful for tests.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failures = 0
	b.lastError = time.Time{}
}
