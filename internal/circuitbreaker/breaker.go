// Package circuitbreaker protects the engine against a failing token
// contract: after repeated failed budget queries, calls fail fast until a
// cooldown has passed.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/token"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

// ErrOpen is returned while the circuit is open
var ErrOpen = errors.New("circuit breaker open")

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, calls fail fast
	StateHalfOpen              // Testing if the dependency has recovered
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
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Thresholds defines the limits that will trigger the circuit breaker
type Thresholds struct {
	// MaxFailures is the number of consecutive failures that trips the circuit
	MaxFailures int `json:"max_failures"`
}

// CircuitBreaker implements the circuit breaker pattern around calls to an
// external dependency.
type CircuitBreaker struct {
	thresholds Thresholds

	state    State
	lastTrip time.Time
	// Duration before a half-open attempt
	resetDelay time.Duration

	mu sync.RWMutex

	failures int
	// Count of consecutive successful calls in HalfOpen state
	successCount     int
	successThreshold int

	onTripCallback func(reason string)
	onStateChange  func(State)
	isFailure      func(error) bool
	now            func() time.Time
}

// New creates a new CircuitBreaker with the provided thresholds
func New(t Thresholds) *CircuitBreaker {
	if t.MaxFailures <= 0 {
		t.MaxFailures = 5
	}
	return &CircuitBreaker{
		thresholds:       t,
		state:            StateClosed,
		resetDelay:       30 * time.Second,
		successThreshold: 3,
		isFailure:        func(err error) bool { return err != nil },
		now:              time.Now,
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithSuccessThreshold sets the number of successful calls needed to close the circuit
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	cb.successThreshold = threshold
	return cb
}

// WithTripCallback sets a callback function that is called when the circuit trips
func (cb *CircuitBreaker) WithTripCallback(callback func(reason string)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// WithStateCallback sets a callback invoked synchronously on every state change
func (cb *CircuitBreaker) WithStateCallback(callback func(State)) *CircuitBreaker {
	cb.onStateChange = callback
	return cb
}

// WithFailurePredicate decides which errors count against the dependency.
// Errors it rejects are returned to the caller but leave the circuit alone.
func (cb *CircuitBreaker) WithFailurePredicate(isFailure func(error) bool) *CircuitBreaker {
	cb.isFailure = isFailure
	return cb
}

// WithClock replaces the time source
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// Execute runs fn unless the circuit is open, and records its outcome
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.RLock()
	state := cb.state
	lastTripTime := cb.lastTrip
	cb.mu.RUnlock()

	if state == StateOpen {
		if cb.now().Sub(lastTripTime) < cb.resetDelay {
			return ErrOpen
		}
		cb.transitionToHalfOpen()
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && cb.isFailure(err) {
		cb.successCount = 0
		cb.failures++
		switch {
		case cb.state == StateHalfOpen:
			cb.trip(fmt.Sprintf("failure while half-open: %v", err))
		case cb.state == StateClosed && cb.failures >= cb.thresholds.MaxFailures:
			cb.trip(fmt.Sprintf("%d consecutive failures, last: %v", cb.failures, err))
		}
		return
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.setState(StateClosed)
			cb.successCount = 0
			logrus.Info("Circuit breaker closed: dependency has recovered")
		}
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forcibly resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.successCount = 0
	cb.failures = 0
	logrus.Info("Circuit breaker manually reset to closed state")
}

// transitionToHalfOpen changes the circuit state to half-open for testing recovery
func (cb *CircuitBreaker) transitionToHalfOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		cb.setState(StateHalfOpen)
		cb.successCount = 0
		logrus.Info("Circuit breaker half-open: testing dependency recovery")
	}
}

// trip sets the circuit breaker to open state with the current time
func (cb *CircuitBreaker) trip(reason string) {
	cb.setState(StateOpen)
	cb.lastTrip = cb.now()
	cb.failures = 0
	logrus.Warnf("Circuit breaker tripped: %s", reason)

	if cb.onTripCallback != nil {
		go cb.onTripCallback(reason)
	}
}

func (cb *CircuitBreaker) setState(s State) {
	cb.state = s
	if cb.onStateChange != nil {
		cb.onStateChange(s)
	}
}

// Querier guards budget queries of a token.Querier with a circuit breaker
type Querier struct {
	inner   token.Querier
	breaker *CircuitBreaker
}

var _ token.Querier = (*Querier)(nil)

// GuardQuerier wraps q. Wrong viewing keys are answers, not failures, and do
// not count against the circuit.
func GuardQuerier(q token.Querier, cb *CircuitBreaker) *Querier {
	cb.WithFailurePredicate(func(err error) bool {
		return !errors.Is(err, token.ErrInvalidViewingKey)
	})
	return &Querier{inner: q, breaker: cb}
}

// Balance implements token.Querier
func (q *Querier) Balance(ctx context.Context, link types.ContractLink, address types.Address, key string) (fixed.Amount, error) {
	var balance fixed.Amount
	err := q.breaker.Execute(func() error {
		var err error
		balance, err = q.inner.Balance(ctx, link, address, key)
		return err
	})
	return balance, err
}

// With returns a querier over inner sharing q's circuit
func (q *Querier) With(inner token.Querier) *Querier {
	return &Querier{inner: inner, breaker: q.breaker}
}

// Breaker returns the underlying circuit breaker
func (q *Querier) Breaker() *CircuitBreaker { return q.breaker }
