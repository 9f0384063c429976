// Package circuitbreaker stops calling a failing dependency for a cool-down
// period after repeated consecutive failures.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute while the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the state of the circuit breaker.
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
	default:
		return "unknown"
	}
}

// Config configures a circuit breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a trial call.
	Cooldown time.Duration
	// OnStateChange is called with the lock released.
	OnStateChange func(from, to State)
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	failures int
	openedAt time.Time
	trialOut bool
}

// New creates a breaker, applying defaults for unset fields.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn unless the circuit is open. In half-open state a single
// trial call is let through; its outcome closes or re-opens the circuit.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	var from, to State
	changed := false
	defer func() {
		b.mu.Unlock()
		if changed {
			b.notify(from, to)
		}
	}()

	switch b.state {
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrCircuitOpen
		}
		from, to, changed = b.state, StateHalfOpen, true
		b.state = StateHalfOpen
		b.trialOut = true
		return nil
	case StateHalfOpen:
		if b.trialOut {
			return ErrCircuitOpen
		}
		b.trialOut = true
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	from := b.state
	if err == nil {
		b.failures = 0
		b.state = StateClosed
	} else {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.cfg.Now()
		}
	}
	b.trialOut = false
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

func (b *Breaker) notify(from, to State) {
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
