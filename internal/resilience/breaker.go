// Package resilience keeps flaky LLM backends from stalling live calls.
//
// A [Breaker] tracks consecutive failures per backend and short-circuits
// requests to one that keeps erroring, so a turn spends its latency budget on
// a healthy fallback instead of waiting out another timeout. [LLMFallback]
// chains several backends behind per-backend breakers.
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

// ErrBreakerOpen is returned by [Breaker.Do] when the backend is quarantined
// and the cooldown has not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// State is a Breaker's operating mode.
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrBreakerOpen] until the cooldown
	// elapses.
	StateOpen

	// StateHalfOpen admits a bounded number of probe calls to decide whether
	// the backend has recovered.
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

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults.
type BreakerConfig struct {
	// Name labels the backend in log lines.
	Name string

	// Trip is the number of consecutive failures that opens the breaker.
	// Default: 5.
	Trip int

	// Cooldown is how long an open breaker rejects calls before it starts
	// probing. Default: 30s.
	Cooldown time.Duration

	// ProbeQuota is both the number of concurrent probes admitted while
	// half-open and the number of probe successes required to close again.
	// Default: 3.
	ProbeQuota int
}

// Breaker quarantines a failing backend. A canceled context is not counted
// against the backend: on a live call it means the caller hung up, which says
// nothing about backend health.
type Breaker struct {
	name       string
	trip       int
	cooldown   time.Duration
	probeQuota int

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	probeWins int
}

// NewBreaker creates a closed [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = 3
	}
	return &Breaker{
		name:       cfg.Name,
		trip:       cfg.Trip,
		cooldown:   cfg.Cooldown,
		probeQuota: cfg.ProbeQuota,
	}
}

// Do runs fn unless the backend is quarantined, in which case it returns
// [ErrBreakerOpen] without calling fn. fn's error is returned as-is.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.settle(err)
	return err
}

// admit decides whether a call may proceed, moving an open breaker into the
// probe state once the cooldown has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if time.Since(b.openedAt) < b.cooldown {
			return ErrBreakerOpen
		}
		b.state = StateHalfOpen
		b.probes = 0
		b.probeWins = 0
		slog.Info("breaker probing backend", "backend", b.name)
	}
	if b.state == StateHalfOpen {
		if b.probes >= b.probeQuota {
			return ErrBreakerOpen
		}
		b.probes++
	}
	return nil
}

// settle records the outcome of an admitted call.
func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Caller hangup, not backend health. Hand the probe slot back and leave
	// the failure counters alone.
	if errors.Is(err, context.Canceled) {
		if b.state == StateHalfOpen && b.probes > 0 {
			b.probes--
		}
		return
	}

	switch {
	case err != nil && b.state == StateHalfOpen:
		b.state = StateOpen
		b.openedAt = time.Now()
		slog.Warn("breaker reopened, probe failed", "backend", b.name)

	case err != nil:
		b.failures++
		if b.failures >= b.trip {
			b.state = StateOpen
			b.openedAt = time.Now()
			slog.Warn("breaker opened",
				"backend", b.name, "consecutive_failures", b.failures)
		}

	case b.state == StateHalfOpen:
		b.probeWins++
		if b.probeWins >= b.probeQuota {
			b.state = StateClosed
			b.failures = 0
			slog.Info("breaker closed, backend recovered", "backend", b.name)
		}

	default:
		b.failures = 0
	}
}

// State reports the breaker's mode. An open breaker whose cooldown has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probes = 0
	b.probeWins = 0
}
