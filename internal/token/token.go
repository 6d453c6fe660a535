// Package token owns the locally persisted bearer credential and its expiry.
package token

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/adlens-labs/adlens-session/internal/common"
	"github.com/adlens-labs/adlens-session/internal/model"
	"github.com/adlens-labs/adlens-session/internal/storage"
)

const (
	// DefaultSessionDuration bounds how long a stored credential is valid.
	DefaultSessionDuration = 7 * 24 * time.Hour
	// DefaultWriteWindow is the minimum interval between credential writes.
	// Auth-state notifications can fire redundantly in quick succession;
	// writes inside the window are treated as "no state change", not errors.
	DefaultWriteWindow = time.Second
)

// Registrar is the device registration step delegated on every accepted
// credential write.
type Registrar interface {
	RegisterOrTouch(ctx context.Context, userID, deviceID, deviceName string) ([]model.DeviceRecord, error)
}

// DeviceIdentity supplies the stable device id for registration.
type DeviceIdentity interface {
	GetOrCreate(ctx context.Context) string
}

// Store persists the credential. Storage faults are logged and swallowed:
// a failed write means the operation did not happen, and expiry reads fail
// safe to "expired".
type Store struct {
	local      storage.LocalStore
	registrar  Registrar
	ids        DeviceIdentity
	logger     *common.Logger
	deviceName string

	duration    time.Duration
	writeWindow time.Duration
	now         func() time.Time
}

// New constructs a Store. registrar and ids may be nil when device
// registration is handled elsewhere.
func New(local storage.LocalStore, registrar Registrar, ids DeviceIdentity, logger *common.Logger, deviceName string, duration, writeWindow time.Duration) *Store {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	if writeWindow <= 0 {
		writeWindow = DefaultWriteWindow
	}
	return &Store{
		local:       local,
		registrar:   registrar,
		ids:         ids,
		logger:      logger,
		deviceName:  deviceName,
		duration:    duration,
		writeWindow: writeWindow,
		now:         time.Now,
	}
}

// SetToken persists the credential and delegates device registration for
// userID. No-ops (without error) when token or userID is absent, when a
// write happened inside the rate-limit window, or when the token is
// identical to the stored one. A *registry.MaxDevicesError from the
// registrar propagates and leaves the stored credential untouched.
func (s *Store) SetToken(ctx context.Context, token, userID string) error {
	if token == "" || userID == "" {
		return nil
	}
	if s.withinWriteWindow(ctx) {
		s.logger.Debug().Msg("token write rejected by rate limit")
		return nil
	}
	if stored, err := s.local.Get(ctx, storage.KeyAuthToken); err == nil && stored == token {
		return nil
	}

	if s.registrar != nil && s.ids != nil {
		deviceID := s.ids.GetOrCreate(ctx)
		if _, err := s.registrar.RegisterOrTouch(ctx, userID, deviceID, s.deviceName); err != nil {
			return err
		}
	}

	now := s.now()
	if err := s.local.Set(ctx, storage.KeyAuthToken, token); err != nil {
		s.logger.Warn().Err(err).Msg("token persist failed")
		return nil
	}
	if err := s.local.Set(ctx, storage.KeyTokenExpiry, formatTime(now.Add(s.duration))); err != nil {
		s.logger.Warn().Err(err).Msg("token expiry persist failed")
	}
	s.markWrite(ctx, now)
	return nil
}

// RefreshExpiry extends the expiry without changing the token. Subject to
// the same rate limit; no-op if already expired.
func (s *Store) RefreshExpiry(ctx context.Context) {
	if s.IsExpired(ctx) {
		return
	}
	if s.withinWriteWindow(ctx) {
		return
	}
	now := s.now()
	if err := s.local.Set(ctx, storage.KeyTokenExpiry, formatTime(now.Add(s.duration))); err != nil {
		s.logger.Warn().Err(err).Msg("expiry refresh persist failed")
		return
	}
	s.markWrite(ctx, now)
}

// IsExpired reports whether the stored credential is usable. Missing token,
// missing expiry or an unparseable expiry all count as expired.
func (s *Store) IsExpired(ctx context.Context) bool {
	if _, ok := s.Token(ctx); !ok {
		return true
	}
	expiresAt, ok := s.expiry(ctx)
	if !ok {
		return true
	}
	return s.now().After(expiresAt)
}

// TimeUntilExpiry returns max(0, expiresAt - now).
func (s *Store) TimeUntilExpiry(ctx context.Context) time.Duration {
	expiresAt, ok := s.expiry(ctx)
	if !ok {
		return 0
	}
	remaining := expiresAt.Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Token returns the stored bearer token if present.
func (s *Store) Token(ctx context.Context) (string, bool) {
	value, err := s.local.Get(ctx, storage.KeyAuthToken)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("token read failed")
		}
		return "", false
	}
	return value, value != ""
}

// Credential returns the stored token and expiry together.
func (s *Store) Credential(ctx context.Context) (model.Credential, bool) {
	token, ok := s.Token(ctx)
	if !ok {
		return model.Credential{}, false
	}
	expiresAt, ok := s.expiry(ctx)
	if !ok {
		return model.Credential{}, false
	}
	return model.Credential{Token: token, ExpiresAt: expiresAt}, true
}

// Clear removes token, expiry and the last-write marker. The device
// registry and hint cache are cleared by the orchestrator separately.
func (s *Store) Clear(ctx context.Context) {
	for _, key := range []string{storage.KeyAuthToken, storage.KeyTokenExpiry, storage.KeyLastTokenWrite} {
		if err := s.local.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("credential clear failed")
		}
	}
}

func (s *Store) withinWriteWindow(ctx context.Context) bool {
	raw, err := s.local.Get(ctx, storage.KeyLastTokenWrite)
	if err != nil {
		return false
	}
	last, ok := parseTime(raw)
	if !ok {
		return false
	}
	return s.now().Sub(last) < s.writeWindow
}

func (s *Store) markWrite(ctx context.Context, now time.Time) {
	if err := s.local.Set(ctx, storage.KeyLastTokenWrite, formatTime(now)); err != nil {
		s.logger.Warn().Err(err).Msg("write marker persist failed")
	}
}

func (s *Store) expiry(ctx context.Context) (time.Time, bool) {
	raw, err := s.local.Get(ctx, storage.KeyTokenExpiry)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("expiry read failed")
		}
		return time.Time{}, false
	}
	return parseTime(raw)
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseTime(raw string) (time.Time, bool) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
