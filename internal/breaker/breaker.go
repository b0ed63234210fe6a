// Package breaker implements per-collaborator circuit breakers that fail
// fast when a downstream service is unhealthy.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/metrics"
)

// State is the breaker's position in its lifecycle.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

// ErrOpen is returned fail-fast when the breaker rejects a call without
// invoking the wrapped function.
var ErrOpen = errors.New("circuit breaker open")

// Config holds the per-breaker tuning knobs.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker from CLOSED.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays OPEN before admitting
	// a half-open probe.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the consecutive half-open successes required to
	// close the breaker.
	SuccessThreshold int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
	}
}

// Counts tracks call outcomes for observability.
type Counts struct {
	Total     uint64 `json:"total_calls"`
	Successes uint64 `json:"successful_calls"`
	Failures  uint64 `json:"failed_calls"`
	Rejected  uint64 `json:"rejected_calls"`
}

// Breaker guards one named collaborator. All state transitions happen under
// the breaker's lock; the wrapped call runs outside it so a slow downstream
// never blocks unrelated callers.
type Breaker struct {
	name string
	cfg  Config

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	openedAt    time.Time
	probing     bool
	counts      Counts

	now func() time.Time // swapped in tests
}

// New creates a breaker for the named collaborator.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig().RecoveryTimeout
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	b := &Breaker{
		name:  name,
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
	metrics.BreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

// Name returns the collaborator name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Call executes fn through the breaker. When OPEN and the recovery timeout
// has not elapsed, or when a half-open probe is already in flight, Call
// returns ErrOpen without invoking fn.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// admit decides under the lock whether the call may proceed, moving OPEN to
// HALF_OPEN when the recovery timeout has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.RecoveryTimeout {
			b.counts.Rejected++
			metrics.BreakerRejections.WithLabelValues(b.name).Inc()
			return ErrOpen
		}
		b.setState(StateHalfOpen)
		b.successes = 0
		b.probing = true
		return nil

	case StateHalfOpen:
		// Exactly one probe at a time
		if b.probing {
			b.counts.Rejected++
			metrics.BreakerRejections.WithLabelValues(b.name).Inc()
			return ErrOpen
		}
		b.probing = true
		return nil
	}

	return nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts.Total++
	b.counts.Successes++

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.setState(StateClosed)
			b.failures = 0
			b.lastFailure = time.Time{}
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts.Total++
	b.counts.Failures++
	b.failures++
	b.lastFailure = b.now()

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		b.setState(StateOpen)
		b.openedAt = b.now()
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.setState(StateOpen)
			b.openedAt = b.now()
		}
	}
}

func (b *Breaker) setState(s State) {
	b.state = s
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(s))
}

// Reset forces the breaker back to CLOSED. Operator use only.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed)
	b.failures = 0
	b.successes = 0
	b.probing = false
	b.lastFailure = time.Time{}
	b.openedAt = time.Time{}
}

// Metrics is a point-in-time snapshot of one breaker.
type Metrics struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Failures    int       `json:"failure_count"`
	LastFailure time.Time `json:"last_failure_time,omitzero"`
	Counts      Counts    `json:"counts"`
}

// Snapshot returns the breaker's current metrics.
func (b *Breaker) Snapshot() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		Name:        b.name,
		State:       b.state.String(),
		Failures:    b.failures,
		LastFailure: b.lastFailure,
		Counts:      b.counts,
	}
}
