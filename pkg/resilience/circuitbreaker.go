// Package resilience guards calls to external model-serving endpoints with a
// circuit breaker so an unreachable backend fails fast instead of stalling
// every request behind a dial timeout.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State of a breaker.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are rejected
	StateHalfOpen              // a limited number of probe calls pass
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

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures a Breaker.
type BreakerOpts struct {
	// Name identifies the guarded endpoint in errors and state callbacks.
	Name string
	// FailThreshold consecutive failures trip the breaker.
	FailThreshold int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// HalfOpenMax probe calls are allowed while half-open.
	HalfOpenMax int
	// OnStateChange is called with the breaker lock released.
	OnStateChange func(name string, from, to State)
}

// DefaultBreakerOpts are used for zero fields.
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	HalfOpenMax:   1,
}

// Breaker is a closed/open/half-open circuit breaker.
// Caller cancellation is not counted as a failure.
type Breaker struct {
	mu            sync.Mutex
	opts          BreakerOpts
	state         State
	failures      int
	openedAt      time.Time
	halfOpenCount int
	now           func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	return &Breaker{opts: opts, now: time.Now}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, _ := b.currentState()
	return st
}

// currentState moves open to half-open once the timeout has elapsed. Must hold mu.
func (b *Breaker) currentState() (State, bool) {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Timeout {
		b.state = StateHalfOpen
		b.halfOpenCount = 0
		return b.state, true
	}
	return b.state, false
}

// Call runs f unless the breaker is open. A nil Breaker always runs f.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	if b == nil {
		return f(ctx)
	}

	b.mu.Lock()
	st, moved := b.currentState()
	if st == StateOpen || (st == StateHalfOpen && b.halfOpenCount >= b.opts.HalfOpenMax) {
		b.mu.Unlock()
		if moved {
			b.notify(StateOpen, StateHalfOpen)
		}
		return fmt.Errorf("%s: %w", b.opts.Name, ErrCircuitOpen)
	}
	if st == StateHalfOpen {
		b.halfOpenCount++
	}
	b.mu.Unlock()
	if moved {
		b.notify(StateOpen, StateHalfOpen)
	}

	err := f(ctx)
	if errors.Is(err, context.Canceled) {
		return err
	}

	b.mu.Lock()
	from := b.state
	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.failures = 0
			b.halfOpenCount = 0
		}
	} else {
		b.state = StateClosed
		b.failures = 0
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
	return err
}

func (b *Breaker) notify(from, to State) {
	if b.opts.OnStateChange != nil {
		b.opts.OnStateChange(b.opts.Name, from, to)
	}
}
