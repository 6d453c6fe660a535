// Package monitor polls the token store and drives the session state
// machine: Idle, Active, Expiring, Expired.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/adlens-labs/adlens-session/internal/common"
	"github.com/adlens-labs/adlens-session/internal/model"
)

const (
	// DefaultInterval is the poll cadence while a user is authenticated.
	DefaultInterval = 60 * time.Second
	// DefaultWarnThreshold is the remaining time below which the session
	// counts as expiring.
	DefaultWarnThreshold = 5 * time.Minute
)

// TokenSource is the read-side of the token lifecycle store.
type TokenSource interface {
	IsExpired(ctx context.Context) bool
	TimeUntilExpiry(ctx context.Context) time.Duration
}

// Monitor re-evaluates the session on a fixed interval. It never extends a
// session on its own: extension is always an explicit user action or a
// fresh authentication.
type Monitor struct {
	tokens        TokenSource
	logger        *common.Logger
	interval      time.Duration
	warnThreshold time.Duration

	onExpired func()
	onChange  func(state model.AuthState, remaining time.Duration)

	mu        sync.Mutex
	state     model.AuthState
	remaining time.Duration
	cancel    context.CancelFunc
}

// Option configures the monitor.
type Option func(*Monitor)

// WithInterval overrides the poll interval.
func WithInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithWarnThreshold overrides the expiring-soon threshold.
func WithWarnThreshold(threshold time.Duration) Option {
	return func(m *Monitor) {
		if threshold > 0 {
			m.warnThreshold = threshold
		}
	}
}

// WithOnExpired sets the forced-logout callback invoked on the transition
// to Expired.
func WithOnExpired(fn func()) Option {
	return func(m *Monitor) {
		m.onExpired = fn
	}
}

// WithOnChange sets a callback invoked on every state transition.
func WithOnChange(fn func(state model.AuthState, remaining time.Duration)) Option {
	return func(m *Monitor) {
		m.onChange = fn
	}
}

// New constructs a Monitor in the Idle state.
func New(tokens TokenSource, logger *common.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	m := &Monitor{
		tokens:        tokens,
		logger:        logger,
		interval:      DefaultInterval,
		warnThreshold: DefaultWarnThreshold,
		state:         model.StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the poll loop. Stop or ctx cancellation ends it.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel = cancel
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Poll(ctx)
			}
		}
	}()
}

// Stop ends the poll loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()
}

// Activate transitions Idle -> Active on successful authentication.
func (m *Monitor) Activate(ctx context.Context) {
	m.mu.Lock()
	if m.state != model.StateIdle {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.transition(model.StateActive, m.tokens.TimeUntilExpiry(ctx))
}

// Deactivate transitions to Idle from any state on logout or provider-driven
// sign-out.
func (m *Monitor) Deactivate() {
	m.transition(model.StateIdle, 0)
}

// Extended returns the session to Active after a successful extension.
func (m *Monitor) Extended(ctx context.Context) {
	m.mu.Lock()
	idle := m.state == model.StateIdle
	m.mu.Unlock()
	if idle {
		return
	}
	m.transition(model.StateActive, m.tokens.TimeUntilExpiry(ctx))
}

// Poll performs one evaluation. Exposed so the tick cadence stays testable.
func (m *Monitor) Poll(ctx context.Context) {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	if state == model.StateIdle || state == model.StateExpired {
		return
	}

	if m.tokens.IsExpired(ctx) {
		m.transition(model.StateExpired, 0)
		if m.onExpired != nil {
			m.onExpired()
		}
		return
	}

	remaining := m.tokens.TimeUntilExpiry(ctx)
	if remaining <= m.warnThreshold {
		m.transition(model.StateExpiring, remaining)
		return
	}
	m.transition(model.StateActive, remaining)
}

// State returns the current session state.
func (m *Monitor) State() model.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Remaining returns the last observed remaining time; ok is false when Idle.
func (m *Monitor) Remaining() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == model.StateIdle {
		return 0, false
	}
	return m.remaining, true
}

func (m *Monitor) transition(next model.AuthState, remaining time.Duration) {
	m.mu.Lock()
	changed := m.state != next || m.remaining != remaining
	prev := m.state
	m.state = next
	m.remaining = remaining
	m.mu.Unlock()
	if !changed {
		return
	}
	if prev != next {
		m.logger.Debug().Str("from", prev.String()).Str("to", next.String()).Msg("session state")
	}
	if m.onChange != nil {
		m.onChange(next, remaining)
	}
}
