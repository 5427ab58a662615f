// Package resilience guards realtime session connects with a circuit
// breaker.
//
// After MaxFailures consecutive failed connects the [Breaker] opens and
// further connects fail fast with [ErrOpen] until the cooldown has passed.
// The first connect after the cooldown is a single probe: success closes the
// breaker, failure opens it for another cooldown.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: backend circuit open")

// State represents the current operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrOpen] until the cooldown elapses.
	StateOpen

	// StateProbing lets exactly one call through to test the backend.
	StateProbing
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// Config holds the tuning knobs of a [Breaker].
type Config struct {
	// Name labels the breaker in log messages.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open before it allows a probe.
	// Default: 30s.
	Cooldown time.Duration

	// Now returns the current time. Default: [time.Now].
	Now func() time.Time
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// New returns a closed Breaker. Zero config fields take their defaults.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         cfg.Now,
	}
}

// Do runs fn if the breaker allows it and records the outcome. It returns
// [ErrOpen] without calling fn while the breaker is open or a probe is in
// flight. A call that fails because ctx was cancelled is not counted.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.acquire()
	if err != nil {
		return err
	}
	err = fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case err == nil:
		b.succeed(probe)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		if probe {
			// The probe slot is released without judging the backend.
			b.state = StateOpen
		}
	default:
		b.fail(probe)
	}
	return err
}

func (b *Breaker) acquire() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, ErrOpen
		}
		b.state = StateProbing
		slog.Info("circuit breaker probing", "name", b.name)
		return true, nil
	case StateProbing:
		return false, ErrOpen
	}
	return false, nil
}

// succeed must be called with b.mu held.
func (b *Breaker) succeed(probe bool) {
	if probe {
		slog.Info("circuit breaker closed", "name", b.name)
	}
	b.state = StateClosed
	b.failures = 0
}

// fail must be called with b.mu held.
func (b *Breaker) fail(probe bool) {
	b.failures++
	if probe || b.failures >= b.maxFailures {
		b.state = StateOpen
		b.openedAt = b.now()
		slog.Warn("circuit breaker opened",
			"name", b.name,
			"consecutive_failures", b.failures,
			"cooldown", b.cooldown,
		)
	}
}

// State returns the current state. An open breaker whose cooldown has elapsed
// still reports [StateOpen] until the next call probes it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Open reports whether the breaker currently rejects calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		return b.now().Sub(b.openedAt) < b.cooldown
	case StateProbing:
		return true
	}
	return false
}

// Reset forces the breaker closed and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	slog.Info("circuit breaker manually reset", "name", b.name)
}
