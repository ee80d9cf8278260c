// Package guard wraps a persistence backend with a circuit breaker so that a
// failing store is answered immediately instead of with one timeout per
// operation.
package guard

import (
	"errors"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"
)

var (
	// ErrOpen is returned without calling the store while the circuit is open.
	ErrOpen = errors.New("store circuit open")

	// ErrProbeLimit is returned in half-open state once every probe slot is taken.
	ErrProbeLimit = errors.New("store circuit half-open probe limit reached")
)

// jitterDivisor bounds the open-timeout jitter to a tenth of the timeout.
const jitterDivisor = 10

// State is the circuit position.
type State int32

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects every call until the open timeout elapses.
	StateOpen
	// StateHalfOpen lets a bounded number of probes through.
	StateHalfOpen
)

// String returns the string representation of the circuit state.
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

// Config sets the breaker thresholds.
type Config struct {
	// FailureThreshold consecutive failures open a closed circuit.
	FailureThreshold int
	// SuccessThreshold successful probes close a half-open circuit.
	SuccessThreshold int
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenProbes bounds concurrent probes.
	HalfOpenProbes int
}

// outcome is how a finished call counts toward the circuit.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeIgnored
)

// Breaker is a lock-free three-state circuit breaker. Counters and the state
// are atomics; transitions are compare-and-swap so concurrent callers agree
// on a single transition.
type Breaker struct {
	state     atomic.Int32
	failures  atomic.Int32
	successes atomic.Int32
	probes    atomic.Int32
	reopenAt  atomic.Int64

	cfg      Config
	now      func() time.Time
	jitter   func(time.Duration) time.Duration
	logger   *slog.Logger
	onChange func(from, to State)
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// WithoutJitter makes the open timeout exact.
func WithoutJitter() BreakerOption {
	return func(b *Breaker) { b.jitter = func(time.Duration) time.Duration { return 0 } }
}

// WithLogger sets the logger used for state transitions.
func WithLogger(l *slog.Logger) BreakerOption {
	return func(b *Breaker) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithStateHook is called after every state transition.
func WithStateHook(fn func(from, to State)) BreakerOption {
	return func(b *Breaker) { b.onChange = fn }
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg Config, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		cfg:    cfg,
		now:    time.Now,
		jitter: randomJitter,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.state.Store(int32(StateClosed))
	return b
}

func randomJitter(timeout time.Duration) time.Duration {
	jit := timeout / jitterDivisor
	if jit <= 0 {
		return 0
	}
	//nolint:gosec // Weak random is fine for jitter
	return time.Duration(rand.Int63n(int64(jit)))
}

// State reports the current circuit position.
func (b *Breaker) State() State { return State(b.state.Load()) }

// allow admits a call or rejects it. The returned release must be called
// once the call finishes.
func (b *Breaker) allow() (release func(), err error) {
	switch b.State() {
	case StateClosed:
		return func() {}, nil

	case StateOpen:
		if b.now().UnixNano() <= b.reopenAt.Load() {
			return nil, ErrOpen
		}
		b.transition(StateOpen, StateHalfOpen)
		return b.probe()

	default:
		return b.probe()
	}
}

func (b *Breaker) probe() (func(), error) {
	for {
		cur := b.probes.Load()
		if int(cur) >= b.cfg.HalfOpenProbes {
			return nil, ErrProbeLimit
		}
		if b.probes.CompareAndSwap(cur, cur+1) {
			return func() {
				// Saturate at zero; a transition may have reset the counter.
				for {
					n := b.probes.Load()
					if n == 0 || b.probes.CompareAndSwap(n, n-1) {
						return
					}
				}
			}, nil
		}
	}
}

func (b *Breaker) record(o outcome) {
	switch o {
	case outcomeSuccess:
		b.recordSuccess()
	case outcomeFailure:
		b.recordFailure()
	}
}

func (b *Breaker) recordSuccess() {
	switch b.State() {
	case StateClosed:
		b.failures.Store(0)
	case StateHalfOpen:
		if int(b.successes.Add(1)) >= b.cfg.SuccessThreshold {
			b.transition(StateHalfOpen, StateClosed)
		}
	}
}

func (b *Breaker) recordFailure() {
	switch b.State() {
	case StateClosed:
		if int(b.failures.Add(1)) >= b.cfg.FailureThreshold {
			b.transition(StateClosed, StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateHalfOpen, StateOpen)
	}
}

// transition moves from one state to another if no concurrent caller got
// there first, resetting the counters of the new state.
func (b *Breaker) transition(from, to State) {
	if to == StateOpen {
		// Stamped first so that no caller sees the open state with a stale
		// deadline. Jitter is drawn once per opening.
		wait := b.cfg.OpenTimeout + b.jitter(b.cfg.OpenTimeout)
		b.reopenAt.Store(b.now().Add(wait).UnixNano())
	}
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		return
	}
	b.failures.Store(0)
	b.successes.Store(0)
	b.probes.Store(0)

	b.logger.Info("store circuit state transition", "from", from.String(), "to", to.String())
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
