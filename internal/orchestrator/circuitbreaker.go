package orchestrator

import (
	"sync"
	"time"
)

// BreakerState is the state of a provider circuit breaker.
type BreakerState int

const (
	// BreakerClosed lets every run through.
	BreakerClosed BreakerState = iota
	// BreakerOpen skips the provider until the reset timeout elapses.
	BreakerOpen
	// BreakerHalfOpen lets runs through to probe recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker tracks consecutive failed provider runs (a run being all
// retries against one provider within one Generate):
// Closed → Open after failureThreshold failed runs,
// Open → HalfOpen once resetTimeout has elapsed,
// HalfOpen → Closed after halfOpenMax successes, or back to Open on failure.
type CircuitBreaker struct {
	mu sync.Mutex

	state            BreakerState
	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMax      int
	now              func() time.Time

	consecutiveFailures int
	halfOpenSuccesses   int
	openedAt            time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if halfOpenMax < 1 {
		halfOpenMax = 1
	}
	return &CircuitBreaker{
		state:            BreakerClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenMax:      halfOpenMax,
		now:              time.Now,
	}
}

// Allow reports whether the provider may be tried now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false
		}
		cb.state = BreakerHalfOpen
		cb.halfOpenSuccesses = 0
	}
	return true
}

// RecordSuccess resets the failure count and may close a half-open breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	if cb.state == BreakerHalfOpen {
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.halfOpenMax {
			cb.state = BreakerClosed
		}
	}
}

// RecordFailure counts a failed run and opens the breaker when warranted.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	switch cb.state {
	case BreakerClosed:
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.state = BreakerOpen
			cb.openedAt = cb.now()
		}
	case BreakerHalfOpen:
		cb.state = BreakerOpen
		cb.openedAt = cb.now()
		cb.halfOpenSuccesses = 0
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Breakers lazily creates one CircuitBreaker per provider name.
type Breakers struct {
	mu sync.Mutex

	breakers         map[string]*CircuitBreaker
	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMax      int
}

// NewBreakers returns a registry whose breakers share the given settings.
func NewBreakers(failureThreshold int, resetTimeout time.Duration, halfOpenMax int) *Breakers {
	return &Breakers{
		breakers:         make(map[string]*CircuitBreaker),
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenMax:      halfOpenMax,
	}
}

// Get returns the breaker for provider, creating it if needed.
func (b *Breakers) Get(provider string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.breakers[provider]
	if !ok {
		cb = NewCircuitBreaker(b.failureThreshold, b.resetTimeout, b.halfOpenMax)
		b.breakers[provider] = cb
	}
	return cb
}

// States snapshots the state of every breaker created so far.
func (b *Breakers) States() map[string]BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]BreakerState, len(b.breakers))
	for name, cb := range b.breakers {
		out[name] = cb.State()
	}
	return out
}
