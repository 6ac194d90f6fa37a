// Package resilience wraps every outbound registry call with mirror
// failover, retry with backoff, and per-(ecosystem,mirror) circuit
// breaking.
package resilience

import (
	"sync"
	"time"
)

// BreakerState is the circuit state for one (ecosystem, mirror) pair.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// Breaker is a circuit breaker. Transitions:
//
//	closed    -> open       after threshold consecutive failures
//	open      -> half_open  after the cool-down elapses
//	half_open -> closed     when the single permitted trial succeeds
//	half_open -> open       when the trial fails (cool-down restarts)
//
// State is never set directly by callers; it only moves through
// Allow/Success/Failure.
type Breaker struct {
	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool

	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &Breaker{
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. trial is true when the call is
// the single half-open probe; the caller must not retry a trial call
// against this mirror.
func (b *Breaker) Allow() (ok, trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, false
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, false
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		return true, true
	default: // half_open
		if b.trialInFlight {
			return false, false
		}
		b.trialInFlight = true
		return true, true
	}
}

// Success records a successful call and closes the circuit.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.trialInFlight = false
}

// Failure records a failed call. In half-open it reopens the circuit; in
// closed it opens once the consecutive-failure threshold is reached.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = b.now()
		b.trialInFlight = false
		return
	}
	b.consecutiveFailures++
	if b.consecutiveFailures >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// State returns the current state without transitioning it.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive-failure counter.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// BreakerSet holds one breaker per (ecosystem, mirror). The map is guarded
// separately from the breakers themselves so contention stays per-key.
type BreakerSet struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	threshold int
	cooldown  time.Duration
}

// NewBreakerSet creates an empty set; breakers are created on first use.
func NewBreakerSet(threshold int, cooldown time.Duration) *BreakerSet {
	return &BreakerSet{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// States returns a snapshot of every breaker's state keyed by
// "ecosystem|mirror".
func (s *BreakerSet) States() map[string]BreakerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]BreakerState, len(s.breakers))
	for key, b := range s.breakers {
		out[key] = b.State()
	}
	return out
}

// Get returns the breaker for (ecosystem, mirror), creating it if needed.
func (s *BreakerSet) Get(ecosystem, mirror string) *Breaker {
	key := ecosystem + "|" + mirror
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[key]
	if !ok {
		b = NewBreaker(s.threshold, s.cooldown)
		s.breakers[key] = b
	}
	return b
}
