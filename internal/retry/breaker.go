package retry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/subtract0/arbiter/internal/observe/metrics"
)

// ErrCircuitOpen signals that the wrapped dependency is currently unhealthy
// and the call was rejected without being attempted. Callers should treat it
// as "try later", not as a fatal fault.
var ErrCircuitOpen = errors.New("circuit breaker open")

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
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 60 * time.Second
)

// Breaker gates calls to one unreliable operation. Its state is local to
// that operation and must not be shared across unrelated call sites.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	lastFailureAt       time.Time
}

// NewBreaker creates a breaker for a named operation. Non-positive
// threshold or timeout fall back to defaults.
func NewBreaker(name string, failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = defaultRecoveryTimeout
	}
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
		state:            StateClosed,
	}
}

// Allow reports whether a call may proceed. While OPEN and inside the
// recovery window it rejects with ErrCircuitOpen without consuming an
// attempt. Once the window elapses the breaker moves to HALF_OPEN and lets
// exactly one trial call through; concurrent callers are rejected until
// that trial reports back.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.lastFailureAt) < b.recoveryTimeout {
			return fmt.Errorf("%w: %s recovering until %s",
				ErrCircuitOpen, b.name, b.lastFailureAt.Add(b.recoveryTimeout).Format(time.RFC3339))
		}
		b.setState(StateHalfOpen)
		return nil
	case StateHalfOpen:
		return fmt.Errorf("%w: %s trial call in flight", ErrCircuitOpen, b.name)
	}
	return nil
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.setState(StateClosed)
}

// RecordFailure counts a failure. A failed HALF_OPEN trial reopens the
// breaker and restarts the recovery timer; in CLOSED, reaching the
// threshold opens it.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.lastFailureAt = b.now()

	if b.state == StateHalfOpen || b.consecutiveFailures >= b.failureThreshold {
		b.setState(StateOpen)
	}
}

// State returns the current breaker position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current failure streak.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// Name returns the wrapped operation's name.
func (b *Breaker) Name() string { return b.name }

// setState transitions the breaker; caller holds the lock.
func (b *Breaker) setState(s State) {
	b.state = s
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(s))
}
