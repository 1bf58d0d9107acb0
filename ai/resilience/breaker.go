// Package resilience guards calls to flaky dependencies with a circuit
// breaker and an exponential-backoff retry loop layered around it.
package resilience

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/embedcore/internal/errs"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of State.
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

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	Name             string
	FailureThreshold int
	RecoveryTimeout  time.Duration
	// SuccessThreshold is the number of consecutive half-open successes
	// needed to close the circuit.
	SuccessThreshold int
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "default",
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
	}
}

// Snapshot is a point-in-time copy of the breaker counters.
type Snapshot struct {
	LastFailure time.Time
	State       State
	Failures    int
	Successes   int
}

// Breaker is a mutex-guarded circuit breaker.
type Breaker struct {
	now      func() time.Time
	recorder Recorder

	cfg BreakerConfig

	mu          sync.Mutex
	lastFailure time.Time
	state       State
	failures    int
	successes   int
}

// NewBreaker creates a closed breaker. Zero config fields take defaults.
func NewBreaker(cfg BreakerConfig, opts ...Option) *Breaker {
	defaults := DefaultBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = defaults.RecoveryTimeout
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = defaults.SuccessThreshold
	}

	o := applyOptions(opts)
	return &Breaker{
		cfg:      cfg,
		now:      o.now,
		recorder: o.recorder,
		state:    StateClosed,
	}
}

// Execute runs fn unless the circuit is open. An open circuit whose recovery
// timeout has elapsed moves to half-open and lets the call through.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn(ctx)
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.lastFailure) >= b.cfg.RecoveryTimeout {
		b.successes = 0
		b.transition(StateHalfOpen)
		return nil
	}
	return errs.ErrCircuitOpen
}

// after records the outcome of a call. Permanent caller errors say nothing
// about backend health and leave the counters alone.
func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case err == nil:
		b.onSuccess()
	case errs.IsPermanent(err):
	default:
		b.onFailure()
	}
}

// onSuccess must be called with lock held.
func (b *Breaker) onSuccess() {
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.failures = 0
			b.successes = 0
			b.transition(StateClosed)
		}
	case StateClosed:
		b.failures = 0
	}
}

// onFailure must be called with lock held.
func (b *Breaker) onFailure() {
	b.failures++
	b.lastFailure = b.now()

	switch b.state {
	case StateHalfOpen:
		b.successes = 0
		b.transition(StateOpen)
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	}
}

// transition must be called with lock held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	switch to {
	case StateOpen:
		slog.Warn("circuit breaker opened", "breaker", b.cfg.Name, "failures", b.failures, "from", from.String())
	case StateHalfOpen:
		slog.Info("circuit breaker testing recovery", "breaker", b.cfg.Name)
	case StateClosed:
		slog.Info("circuit breaker reset to closed", "breaker", b.cfg.Name)
	}
	if b.recorder != nil {
		b.recorder.RecordBreakerTransition(b.cfg.Name, from.String(), to.String())
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the breaker counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:       b.state,
		Failures:    b.failures,
		Successes:   b.successes,
		LastFailure: b.lastFailure,
	}
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.cfg.Name
}
