package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/adlens-labs/adlens-session/internal/common"
	"github.com/adlens-labs/adlens-session/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	expired   bool
	remaining time.Duration
}

func (f *fakeTokens) IsExpired(context.Context) bool {
	return f.expired
}

func (f *fakeTokens) TimeUntilExpiry(context.Context) time.Duration {
	return f.remaining
}

func TestStartsIdle(t *testing.T) {
	m := New(&fakeTokens{}, common.NewSilentLogger())
	assert.Equal(t, model.StateIdle, m.State())
	_, ok := m.Remaining()
	assert.False(t, ok)
}

func TestActivateOnAuthentication(t *testing.T) {
	tokens := &fakeTokens{remaining: 6 * time.Hour}
	m := New(tokens, common.NewSilentLogger())
	ctx := context.Background()

	m.Activate(ctx)
	assert.Equal(t, model.StateActive, m.State())

	remaining, ok := m.Remaining()
	require.True(t, ok)
	assert.Equal(t, 6*time.Hour, remaining)
}

func TestPollIdleDoesNothing(t *testing.T) {
	tokens := &fakeTokens{expired: true}
	m := New(tokens, common.NewSilentLogger())

	m.Poll(context.Background())
	assert.Equal(t, model.StateIdle, m.State())
}

func TestPollTransitionsToExpiring(t *testing.T) {
	tokens := &fakeTokens{remaining: 4 * time.Minute}
	m := New(tokens, common.NewSilentLogger(), WithWarnThreshold(5*time.Minute))
	ctx := context.Background()

	m.Activate(ctx)
	m.Poll(ctx)

	assert.Equal(t, model.StateExpiring, m.State())
	remaining, ok := m.Remaining()
	require.True(t, ok)
	assert.Equal(t, 4*time.Minute, remaining)
}

func TestPollTransitionsToExpiredAndForcesLogout(t *testing.T) {
	tokens := &fakeTokens{remaining: 10 * time.Minute}
	logoutCalled := false
	m := New(tokens, common.NewSilentLogger(), WithOnExpired(func() { logoutCalled = true }))
	ctx := context.Background()

	m.Activate(ctx)
	tokens.expired = true
	m.Poll(ctx)

	assert.Equal(t, model.StateExpired, m.State())
	assert.True(t, logoutCalled)

	// expired is terminal for the session: further polls are no-ops
	logoutCalled = false
	m.Poll(ctx)
	assert.False(t, logoutCalled)
}

func TestPollRecoversToActive(t *testing.T) {
	tokens := &fakeTokens{remaining: 4 * time.Minute}
	m := New(tokens, common.NewSilentLogger(), WithWarnThreshold(5*time.Minute))
	ctx := context.Background()

	m.Activate(ctx)
	m.Poll(ctx)
	require.Equal(t, model.StateExpiring, m.State())

	// an extension performed elsewhere pushes the expiry out again
	tokens.remaining = 7 * 24 * time.Hour
	m.Extended(ctx)
	assert.Equal(t, model.StateActive, m.State())

	m.Poll(ctx)
	assert.Equal(t, model.StateActive, m.State())
}

func TestDeactivateFromAnyState(t *testing.T) {
	tokens := &fakeTokens{remaining: time.Minute}
	m := New(tokens, common.NewSilentLogger())
	ctx := context.Background()

	m.Activate(ctx)
	m.Poll(ctx)
	m.Deactivate()
	assert.Equal(t, model.StateIdle, m.State())

	// extension while idle stays idle: the monitor never resurrects a session
	m.Extended(ctx)
	assert.Equal(t, model.StateIdle, m.State())
}

func TestOnChangeFires(t *testing.T) {
	tokens := &fakeTokens{remaining: 4 * time.Minute}
	var states []model.AuthState
	m := New(tokens, common.NewSilentLogger(),
		WithWarnThreshold(5*time.Minute),
		WithOnChange(func(state model.AuthState, _ time.Duration) {
			states = append(states, state)
		}),
	)
	ctx := context.Background()

	m.Activate(ctx)
	m.Poll(ctx)
	m.Deactivate()

	assert.Equal(t, []model.AuthState{model.StateActive, model.StateExpiring, model.StateIdle}, states)
}

func TestTickerLoop(t *testing.T) {
	tokens := &fakeTokens{remaining: 4 * time.Minute}
	m := New(tokens, common.NewSilentLogger(),
		WithInterval(10*time.Millisecond),
		WithWarnThreshold(5*time.Minute),
	)
	ctx := context.Background()

	m.Activate(ctx)
	m.Start(ctx)
	defer m.Stop()

	require.Eventually(t, func() bool {
		return m.State() == model.StateExpiring
	}, time.Second, 5*time.Millisecond)
}
