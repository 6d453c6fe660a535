package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adlens-labs/adlens-session/internal/common"
	"github.com/adlens-labs/adlens-session/internal/model"
	"github.com/adlens-labs/adlens-session/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

type recordingRegistrar struct {
	calls []string
	err   error
}

func (r *recordingRegistrar) RegisterOrTouch(_ context.Context, userID, deviceID, deviceName string) ([]model.DeviceRecord, error) {
	r.calls = append(r.calls, userID+"/"+deviceID)
	if r.err != nil {
		return nil, r.err
	}
	return []model.DeviceRecord{{ID: deviceID, Name: deviceName}}, nil
}

type fixedIdentity struct{ id string }

func (f fixedIdentity) GetOrCreate(context.Context) string { return f.id }

func newTestStore(t *testing.T) (*Store, *fakeClock, *recordingRegistrar, *storage.MemoryStore) {
	t.Helper()
	local := storage.NewMemoryStore()
	reg := &recordingRegistrar{}
	clock := &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := New(local, reg, fixedIdentity{id: "dev-1"}, common.NewSilentLogger(), "laptop", 7*24*time.Hour, time.Second)
	s.now = clock.now
	return s, clock, reg, local
}

func TestSetTokenPersistsAndRegisters(t *testing.T) {
	s, clock, reg, local := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, "tok-1", "user-1"))

	stored, err := local.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", stored)
	assert.Equal(t, []string{"user-1/dev-1"}, reg.calls)

	assert.False(t, s.IsExpired(ctx))
	remaining := s.TimeUntilExpiry(ctx)
	assert.InDelta(t, (7 * 24 * time.Hour).Seconds(), remaining.Seconds(), 1)

	clock.advance(7*24*time.Hour + time.Minute)
	assert.True(t, s.IsExpired(ctx))
	assert.Equal(t, time.Duration(0), s.TimeUntilExpiry(ctx))
}

func TestSetTokenRejectsMissingArgs(t *testing.T) {
	s, _, reg, local := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, "", "user-1"))
	require.NoError(t, s.SetToken(ctx, "tok-1", ""))

	_, err := local.Get(ctx, storage.KeyAuthToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, reg.calls)
}

func TestSetTokenRateLimited(t *testing.T) {
	s, clock, reg, local := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, "tok-1", "user-1"))
	clock.advance(500 * time.Millisecond)
	require.NoError(t, s.SetToken(ctx, "tok-2", "user-1"))

	// first token survives; second write was inside the window
	stored, err := local.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", stored)
	assert.Len(t, reg.calls, 1)

	clock.advance(time.Second)
	require.NoError(t, s.SetToken(ctx, "tok-2", "user-1"))
	stored, err = local.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", stored)
	assert.Len(t, reg.calls, 2)
}

func TestSetTokenIdenticalIsNoop(t *testing.T) {
	s, clock, reg, local := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, "tok-1", "user-1"))
	firstWrite, err := local.Get(ctx, storage.KeyLastTokenWrite)
	require.NoError(t, err)

	clock.advance(5 * time.Second)
	require.NoError(t, s.SetToken(ctx, "tok-1", "user-1"))

	// no second device touch, no rate-limiter reset
	assert.Len(t, reg.calls, 1)
	secondWrite, err := local.Get(ctx, storage.KeyLastTokenWrite)
	require.NoError(t, err)
	assert.Equal(t, firstWrite, secondWrite)
}

func TestSetTokenPropagatesRegistrarError(t *testing.T) {
	s, _, reg, local := newTestStore(t)
	reg.err = errors.New("max devices reached")
	ctx := context.Background()

	err := s.SetToken(ctx, "tok-1", "user-1")
	require.Error(t, err)

	// credential untouched when registration fails
	_, getErr := local.Get(ctx, storage.KeyAuthToken)
	assert.ErrorIs(t, getErr, storage.ErrNotFound)
}

func TestRefreshExpiry(t *testing.T) {
	s, clock, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, "tok-1", "user-1"))
	clock.advance(3 * 24 * time.Hour)
	before := s.TimeUntilExpiry(ctx)

	s.RefreshExpiry(ctx)
	after := s.TimeUntilExpiry(ctx)
	assert.Greater(t, after, before)
	assert.InDelta(t, (7 * 24 * time.Hour).Seconds(), after.Seconds(), 1)

	// token itself is unchanged
	cred, ok := s.Credential(ctx)
	require.True(t, ok)
	assert.Equal(t, "tok-1", cred.Token)
}

func TestRefreshExpiryNoopWhenExpired(t *testing.T) {
	s, clock, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, "tok-1", "user-1"))
	clock.advance(8 * 24 * time.Hour)
	require.True(t, s.IsExpired(ctx))

	s.RefreshExpiry(ctx)
	assert.True(t, s.IsExpired(ctx))
}

func TestRefreshExpiryRateLimited(t *testing.T) {
	s, clock, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, "tok-1", "user-1"))
	clock.advance(time.Hour)
	s.RefreshExpiry(ctx)
	remaining := s.TimeUntilExpiry(ctx)

	clock.advance(500 * time.Millisecond)
	s.RefreshExpiry(ctx)
	assert.InDelta(t, remaining.Seconds(), s.TimeUntilExpiry(ctx).Seconds()+0.5, 1)
}

func TestClear(t *testing.T) {
	s, _, _, local := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, "tok-1", "user-1"))
	s.Clear(ctx)

	assert.True(t, s.IsExpired(ctx))
	for _, key := range []string{storage.KeyAuthToken, storage.KeyTokenExpiry, storage.KeyLastTokenWrite} {
		_, err := local.Get(ctx, key)
		assert.ErrorIs(t, err, storage.ErrNotFound, key)
	}
}

func TestIsExpiredOnUnparseableExpiry(t *testing.T) {
	s, _, _, local := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, "tok-1", "user-1"))
	require.NoError(t, local.Set(ctx, storage.KeyTokenExpiry, "garbage"))

	assert.True(t, s.IsExpired(ctx))
	assert.Equal(t, time.Duration(0), s.TimeUntilExpiry(ctx))
}

func TestIsExpiredWithNoToken(t *testing.T) {
	s, _, _, _ := newTestStore(t)
	assert.True(t, s.IsExpired(context.Background()))
}

func TestTimeUntilExpiryMonotonic(t *testing.T) {
	s, clock, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, "tok-1", "user-1"))
	previous := s.TimeUntilExpiry(ctx)
	for i := 0; i < 5; i++ {
		clock.advance(13 * time.Minute)
		current := s.TimeUntilExpiry(ctx)
		assert.LessOrEqual(t, current, previous)
		previous = current
	}
}

func TestStorageFaultsAreSwallowed(t *testing.T) {
	reg := &recordingRegistrar{}
	s := New(faultyStore{}, reg, fixedIdentity{id: "dev-1"}, common.NewSilentLogger(), "laptop", time.Hour, time.Second)
	ctx := context.Background()

	assert.NoError(t, s.SetToken(ctx, "tok-1", "user-1"))
	assert.True(t, s.IsExpired(ctx))
	assert.NotPanics(t, func() { s.Clear(ctx) })
}

type faultyStore struct{}

func (faultyStore) Get(context.Context, string) (string, error) {
	return "", errors.New("storage fault")
}

func (faultyStore) Set(context.Context, string, string) error {
	return errors.New("storage fault")
}

func (faultyStore) Delete(context.Context, string) error {
	return errors.New("storage fault")
}

func (faultyStore) Close() error { return nil }
