package redis

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrCircuitOpen is returned without calling the guarded function while the
// breaker is open or a half-open probe is already in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker position.
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

// BreakerStats is a point-in-time view of a CircuitBreaker.
type BreakerStats struct {
	State    State
	Failures int       // consecutive failures while closed
	Trips    int       // closed/half-open -> open transitions
	OpenedAt time.Time // zero unless open
}

// CircuitBreaker guards Redis writes. It opens after maxFailures consecutive
// failures, rejects calls for resetTimeout, then lets a single probe through:
// success closes it, failure reopens it. Context cancellation is not counted
// as a failure.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	trips    int
	openedAt time.Time
	probing  bool

	// OnStateChange is called on every transition, with the breaker locked.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments fall
// back to 5 failures and a 10s reset timeout.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 10 * time.Second
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// Execute runs fn unless the breaker rejects the call.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if probe {
		cb.probing = false
	}

	switch {
	case err == nil:
		cb.failures = 0
		if cb.state != StateClosed {
			cb.setState(StateClosed)
		}
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Not counted. An unfinished probe is retried by the next caller.
	case cb.state == StateHalfOpen:
		cb.trip()
	default:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.trip()
		}
	}
	return err
}

// admit decides whether a call may proceed and whether it is the half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
		return true, nil
	case StateHalfOpen:
		if cb.probing {
			return false, ErrCircuitOpen
		}
		cb.probing = true
		return true, nil
	default:
		return false, nil
	}
}

func (cb *CircuitBreaker) trip() {
	cb.trips++
	cb.failures = 0
	cb.openedAt = cb.now()
	cb.setState(StateOpen)
}

func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	cb.state = to
	if to != StateOpen {
		cb.openedAt = time.Time{}
	}
	if cb.OnStateChange != nil && from != to {
		cb.OnStateChange(from, to)
	}
}

// CurrentState returns the breaker position.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns counters for status reporting.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		State:    cb.state,
		Failures: cb.failures,
		Trips:    cb.trips,
		OpenedAt: cb.openedAt,
	}
}
