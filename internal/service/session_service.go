package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adlens-labs/adlens-session/internal/common"
	"github.com/adlens-labs/adlens-session/internal/deviceid"
	"github.com/adlens-labs/adlens-session/internal/hintcache"
	"github.com/adlens-labs/adlens-session/internal/identity"
	"github.com/adlens-labs/adlens-session/internal/model"
	"github.com/adlens-labs/adlens-session/internal/monitor"
	"github.com/adlens-labs/adlens-session/internal/registry"
	"github.com/adlens-labs/adlens-session/internal/storage"
	"github.com/adlens-labs/adlens-session/internal/token"
)

// SessionService sequences the core components: it is the thin orchestration
// layer between the identity provider, the token store, the device registry
// and the expiry monitor. Capacity and authentication errors propagate to
// the caller; storage faults stay inside the components that produced them.
type SessionService struct {
	ids      *deviceid.Manager
	tokens   *token.Store
	registry *registry.Client
	hints    *hintcache.Cache
	monitor  *monitor.Monitor
	provider identity.Provider
	local    storage.LocalStore
	logger   *common.Logger
	now      func() time.Time

	mu              sync.Mutex
	maxDevicesError bool
}

// NewSessionService wires the orchestrator.
func NewSessionService(ids *deviceid.Manager, tokens *token.Store, reg *registry.Client, hints *hintcache.Cache, mon *monitor.Monitor, provider identity.Provider, local storage.LocalStore, logger *common.Logger) *SessionService {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &SessionService{
		ids:      ids,
		tokens:   tokens,
		registry: reg,
		hints:    hints,
		monitor:  mon,
		provider: provider,
		local:    local,
		logger:   logger,
		now:      time.Now,
	}
}

// Run consumes the provider's auth state stream to keep the monitor in step
// with sign-ins and sign-outs from other tabs. Blocks until ctx is done.
func (s *SessionService) Run(ctx context.Context) {
	changes := s.provider.AuthStateChanges()
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if change.Principal == nil {
				s.monitor.Deactivate()
				continue
			}
			if !s.tokens.IsExpired(ctx) {
				s.monitor.Activate(ctx)
			}
		}
	}
}

// LoginWithPassword authenticates with email and password and establishes
// the local session.
func (s *SessionService) LoginWithPassword(ctx context.Context, email, password string) (*identity.Principal, error) {
	sess, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.establish(ctx, sess); err != nil {
		return nil, err
	}
	return &sess.Principal, nil
}

// LoginFederated completes a federated sign-in and caches the hint for the
// next visit.
func (s *SessionService) LoginFederated(ctx context.Context, providerName string) (*identity.Principal, error) {
	sess, err := s.provider.SignInWithFederated(ctx, providerName)
	if err != nil {
		return nil, err
	}
	if err := s.establish(ctx, sess); err != nil {
		return nil, err
	}
	s.hints.Set(ctx, model.FederatedHint{
		Email:       sess.Principal.Email,
		DisplayName: sess.Principal.DisplayName,
		PhotoURL:    sess.Principal.PhotoURL,
	}, s.ids.GetOrCreate(ctx))
	return &sess.Principal, nil
}

// CreateAccount registers a new account and establishes the local session.
func (s *SessionService) CreateAccount(ctx context.Context, email, password string) (*identity.Principal, error) {
	sess, err := s.provider.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.establish(ctx, sess); err != nil {
		return nil, err
	}
	return &sess.Principal, nil
}

// establish persists the credential, which registers this device as a side
// effect. A capacity error rolls the provider session back so the account
// is not left signed in on a device it may not use.
func (s *SessionService) establish(ctx context.Context, sess *identity.Session) error {
	err := s.tokens.SetToken(ctx, sess.Token, sess.Principal.UserID)
	var maxErr *registry.MaxDevicesError
	if errors.As(err, &maxErr) {
		s.setMaxDevicesError(true)
		if signOutErr := s.provider.SignOut(ctx); signOutErr != nil {
			s.logger.Warn().Err(signOutErr).Msg("rollback sign-out failed")
		}
		return err
	}
	if err != nil {
		return err
	}
	s.setMaxDevicesError(false)
	s.touchProfile(ctx, sess.Principal.UserID)
	if s.monitor.State() == model.StateIdle {
		s.monitor.Activate(ctx)
	} else {
		// A fresh authentication counts as an extension.
		s.monitor.Extended(ctx)
	}
	return nil
}

// Logout runs the inverse of login: evict this device from the registry,
// then clear the credential and the hint cache.
func (s *SessionService) Logout(ctx context.Context) error {
	if principal := s.provider.Current(); principal != nil {
		deviceID := s.ids.GetOrCreate(ctx)
		if err := s.registry.Remove(ctx, principal.UserID, deviceID); err != nil {
			s.logger.Warn().Err(err).Msg("device eviction failed")
		}
	}
	s.tokens.Clear(ctx)
	s.hints.Clear(ctx)
	err := s.provider.SignOut(ctx)
	s.monitor.Deactivate()
	return err
}

// Extend obtains a fresh credential from the provider and persists it.
// Never called autonomously; this is the user-initiated extension.
func (s *SessionService) Extend(ctx context.Context) error {
	principal := s.provider.Current()
	if principal == nil {
		return identity.ErrNotSignedIn
	}
	fresh, err := s.provider.CurrentToken(ctx, true)
	if err != nil {
		return err
	}
	current, _ := s.tokens.Token(ctx)
	if fresh != "" && fresh != current {
		if err := s.tokens.SetToken(ctx, fresh, principal.UserID); err != nil {
			return err
		}
	} else {
		s.tokens.RefreshExpiry(ctx)
	}
	s.monitor.Extended(ctx)
	return nil
}

// Devices lists the registry for the signed-in user.
func (s *SessionService) Devices(ctx context.Context) ([]model.DeviceRecord, error) {
	principal := s.provider.Current()
	if principal == nil {
		return nil, identity.ErrNotSignedIn
	}
	return s.registry.List(ctx, principal.UserID)
}

// RemoveDevice evicts a device after reauthenticating the user. Removing
// the current device also clears the local credential, forcing logout.
func (s *SessionService) RemoveDevice(ctx context.Context, deviceID, password string) error {
	principal := s.provider.Current()
	if principal == nil {
		return identity.ErrNotSignedIn
	}
	if err := s.provider.Reauthenticate(ctx, password); err != nil {
		return err
	}
	if err := s.registry.Remove(ctx, principal.UserID, deviceID); err != nil {
		return err
	}
	if deviceID == s.ids.GetOrCreate(ctx) {
		s.tokens.Clear(ctx)
		s.monitor.Deactivate()
	}
	return nil
}

// Signals returns the snapshot consumed by the UI layer.
func (s *SessionService) Signals(ctx context.Context) model.Signals {
	signals := model.Signals{
		AuthState:  s.monitor.State(),
		MaxDevices: s.registry.MaxDevices(),
	}
	s.mu.Lock()
	signals.MaxDevicesError = s.maxDevicesError
	s.mu.Unlock()
	if remaining, ok := s.monitor.Remaining(); ok {
		signals.RemainingSessionTime = &remaining
	}
	signals.CachedFederatedHint = s.hints.Get(ctx, s.ids.GetOrCreate(ctx))
	return signals
}

// ClearHint drops the cached federated hint, e.g. after provider-side
// credential invalidation.
func (s *SessionService) ClearHint(ctx context.Context) {
	s.hints.Clear(ctx)
}

func (s *SessionService) setMaxDevicesError(v bool) {
	s.mu.Lock()
	s.maxDevicesError = v
	s.mu.Unlock()
}

func (s *SessionService) touchProfile(ctx context.Context, userID string) {
	if err := s.local.Set(ctx, storage.ProfileTouchKey(userID), s.now().UTC().Format(time.RFC3339)); err != nil {
		s.logger.Debug().Err(err).Msg("profile touch failed")
	}
}
