package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/adlens-labs/adlens-session/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.db")
	store, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestSetGetDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	require.NoError(t, store.Set(ctx, "auth.token", "abc"))
	value, err := store.Get(ctx, "auth.token")
	require.NoError(t, err)
	assert.Equal(t, "abc", value)

	require.NoError(t, store.Delete(ctx, "auth.token"))
	_, err = store.Get(ctx, "auth.token")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	// deleting an absent key is not an error
	assert.NoError(t, store.Delete(ctx, "auth.token"))
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	store, err := New(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "device.id", "dev-1"))
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "device.id")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", value)
}

func TestContextCancelled(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Set(ctx, "k", "v"), context.Canceled)
}
