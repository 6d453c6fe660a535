// Package hintcache keeps an obfuscated, time-boxed copy of the last
// successful federated sign-in so the UI can offer a "continue as" prompt.
//
// The stored blob is XORed with a keystream derived from the device id.
// This is a deterrent against casual inspection of the local store, not a
// security boundary: the key material sits next to the ciphertext.
package hintcache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/adlens-labs/adlens-session/internal/common"
	"github.com/adlens-labs/adlens-session/internal/model"
	"github.com/adlens-labs/adlens-session/internal/storage"
	"golang.org/x/crypto/blake2b"
)

// DefaultTTL bounds how long a cached hint stays usable.
const DefaultTTL = 14 * 24 * time.Hour

// Cache stores at most one hint. Every failure on the read or write path is
// treated as a cache miss and never propagates.
type Cache struct {
	local  storage.LocalStore
	logger *common.Logger
	ttl    time.Duration
	now    func() time.Time
}

// New constructs a Cache with the given TTL (DefaultTTL when not positive).
func New(local storage.LocalStore, logger *common.Logger, ttl time.Duration) *Cache {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		local:  local,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Set obfuscates and stores the hint, stamping it with the cache TTL.
func (c *Cache) Set(ctx context.Context, hint model.FederatedHint, deviceID string) {
	hint.ExpiresAt = c.now().Add(c.ttl).UTC()
	payload, err := json.Marshal(hint)
	if err != nil {
		c.logger.Debug().Err(err).Msg("hint encode failed")
		return
	}
	blob := base64.StdEncoding.EncodeToString(obfuscate(payload, deviceID))
	if err := c.local.Set(ctx, storage.KeyFederatedHint, blob); err != nil {
		c.logger.Debug().Err(err).Msg("hint persist failed")
	}
}

// Get returns the cached hint, or nil when absent, unparseable or expired.
// Unparseable and expired blobs are cleared as a side effect.
func (c *Cache) Get(ctx context.Context, deviceID string) *model.FederatedHint {
	blob, err := c.local.Get(ctx, storage.KeyFederatedHint)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Debug().Err(err).Msg("hint read failed")
		}
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		c.Clear(ctx)
		return nil
	}
	var hint model.FederatedHint
	if err := json.Unmarshal(obfuscate(raw, deviceID), &hint); err != nil {
		c.Clear(ctx)
		return nil
	}
	if c.now().After(hint.ExpiresAt) {
		c.Clear(ctx)
		return nil
	}
	return &hint
}

// Clear removes the cached blob unconditionally.
func (c *Cache) Clear(ctx context.Context) {
	if err := c.local.Delete(ctx, storage.KeyFederatedHint); err != nil {
		c.logger.Debug().Err(err).Msg("hint clear failed")
	}
}

// obfuscate XORs data with a keystream derived from the device id. The
// transform is its own inverse.
func obfuscate(data []byte, deviceID string) []byte {
	pad := keystream(deviceID, len(data))
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ pad[i]
	}
	return out
}

func keystream(deviceID string, n int) []byte {
	pad := make([]byte, n)
	if n == 0 {
		return pad
	}
	xof, err := blake2b.NewXOF(blake2b.OutputLengthUnknown, nil)
	if err != nil {
		// NewXOF with a nil key cannot fail; keep the zero pad if it ever does.
		return pad
	}
	xof.Write([]byte(deviceID))
	if _, err := io.ReadFull(xof, pad); err != nil {
		return pad
	}
	return pad
}
