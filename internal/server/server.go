// Package server exposes the session signals and operations to the local UI
// layer over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/adlens-labs/adlens-session/internal/common"
	"github.com/adlens-labs/adlens-session/internal/config"
	"github.com/adlens-labs/adlens-session/internal/identity"
	"github.com/adlens-labs/adlens-session/internal/model"
	"github.com/adlens-labs/adlens-session/internal/registry"
	"github.com/adlens-labs/adlens-session/internal/service"
	"github.com/adlens-labs/adlens-session/internal/token"
	"github.com/gofiber/fiber/v2"
)

// Server wires HTTP handlers.
type Server struct {
	app        *fiber.App
	sessionSvc *service.SessionService
	tokens     *token.Store
	cfg        *config.Config
	logger     *common.Logger
}

// New builds a server instance.
func New(cfg *config.Config, sessionSvc *service.SessionService, tokens *token.Store, logger *common.Logger) *Server {
	app := fiber.New(fiber.Config{
		IdleTimeout:  cfg.HTTP.ReadTimeout,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		AppName:      "adlens-session",
	})
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	s := &Server{
		app:        app,
		sessionSvc: sessionSvc,
		tokens:     tokens,
		cfg:        cfg,
		logger:     logger,
	}
	s.registerRoutes()
	return s
}

// Start listens and serves HTTP traffic.
func (s *Server) Start() error {
	return s.app.Listen(s.cfg.HTTP.Addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) registerRoutes() {
	s.app.Get("/healthz", s.handleHealth)

	s.app.Post("/auth/login", s.handleLogin)
	s.app.Post("/auth/federated", s.handleFederated)
	s.app.Post("/auth/register", s.handleRegister)
	s.app.Post("/auth/logout", s.handleLogout)

	s.app.Get("/session/status", s.handleStatus)
	s.app.Post("/session/extend", s.handleExtend)

	s.app.Get("/devices", s.handleDevices)
	s.app.Delete("/devices/:id", s.handleRemoveDevice)

	s.app.Get("/hint", s.handleHint)
	s.app.Delete("/hint", s.handleClearHint)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(model.Error("invalid request body"))
	}
	principal, err := s.sessionSvc.LoginWithPassword(c.Context(), req.Email, req.Password)
	if err != nil {
		return s.loginError(c, err)
	}
	return c.JSON(model.Success("signed in", principal))
}

func (s *Server) handleFederated(c *fiber.Ctx) error {
	var req struct {
		Provider string `json:"provider"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(model.Error("invalid request body"))
	}
	if req.Provider == "" {
		req.Provider = "google"
	}
	principal, err := s.sessionSvc.LoginFederated(c.Context(), req.Provider)
	if err != nil {
		return s.loginError(c, err)
	}
	return c.JSON(model.Success("signed in", principal))
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(model.Error("invalid request body"))
	}
	principal, err := s.sessionSvc.CreateAccount(c.Context(), req.Email, req.Password)
	if err != nil {
		return s.loginError(c, err)
	}
	return c.JSON(model.Success("account created", principal))
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	if err := s.sessionSvc.Logout(c.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("logout completed with provider error")
	}
	return c.JSON(model.Success("signed out", nil))
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	ctx := c.Context()
	signals := s.sessionSvc.Signals(ctx)
	payload := fiber.Map{
		"authState":       signals.AuthState,
		"maxDevicesError": signals.MaxDevicesError,
		"maxDevices":      signals.MaxDevices,
	}
	if signals.RemainingSessionTime != nil {
		payload["remainingSessionSeconds"] = int64(signals.RemainingSessionTime.Seconds())
	}
	if signals.CachedFederatedHint != nil {
		payload["cachedFederatedHint"] = signals.CachedFederatedHint
	}
	if bearer, ok := s.tokens.Token(ctx); ok {
		if exp, ok := token.ServerDeclaredExpiry(bearer); ok {
			payload["serverDeclaredExpiry"] = exp.UTC().Format(time.RFC3339)
		}
	}
	return c.JSON(model.Success("ok", payload))
}

func (s *Server) handleExtend(c *fiber.Ctx) error {
	if err := s.sessionSvc.Extend(c.Context()); err != nil {
		if errors.Is(err, identity.ErrNotSignedIn) {
			return c.Status(http.StatusUnauthorized).JSON(model.ErrorWithCode(model.AuthFailedCode, err.Error()))
		}
		return c.Status(http.StatusBadGateway).JSON(model.Error(err.Error()))
	}
	return c.JSON(model.Success("session extended", nil))
}

func (s *Server) handleDevices(c *fiber.Ctx) error {
	devices, err := s.sessionSvc.Devices(c.Context())
	if err != nil {
		if errors.Is(err, identity.ErrNotSignedIn) {
			return c.Status(http.StatusUnauthorized).JSON(model.ErrorWithCode(model.AuthFailedCode, err.Error()))
		}
		return c.Status(http.StatusBadGateway).JSON(model.Error(err.Error()))
	}
	return c.JSON(model.Success("ok", devices))
}

func (s *Server) handleRemoveDevice(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil && !errors.Is(err, fiber.ErrUnprocessableEntity) {
		return c.Status(http.StatusBadRequest).JSON(model.Error("invalid request body"))
	}
	err := s.sessionSvc.RemoveDevice(c.Context(), c.Params("id"), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrReauthRequired):
			return c.Status(http.StatusUnauthorized).JSON(model.ErrorWithCode(model.ReauthNeededCode, "password verification failed"))
		case errors.Is(err, identity.ErrNotSignedIn):
			return c.Status(http.StatusUnauthorized).JSON(model.ErrorWithCode(model.AuthFailedCode, err.Error()))
		default:
			return c.Status(http.StatusBadGateway).JSON(model.Error(err.Error()))
		}
	}
	return c.JSON(model.Success("device removed", nil))
}

func (s *Server) handleHint(c *fiber.Ctx) error {
	signals := s.sessionSvc.Signals(c.Context())
	if signals.CachedFederatedHint == nil {
		return c.JSON(model.Success("no hint", nil))
	}
	return c.JSON(model.Success("ok", signals.CachedFederatedHint))
}

func (s *Server) handleClearHint(c *fiber.Ctx) error {
	s.sessionSvc.ClearHint(c.Context())
	return c.JSON(model.Success("hint cleared", nil))
}

// loginError maps the error taxonomy onto HTTP: capacity errors carry the
// ceiling so the UI can offer device removal, authentication errors stay
// distinct from them.
func (s *Server) loginError(c *fiber.Ctx, err error) error {
	var maxErr *registry.MaxDevicesError
	if errors.As(err, &maxErr) {
		return c.Status(http.StatusConflict).JSON(model.BasicResponse{
			Code: model.MaxDevicesCode,
			Msg:  maxErr.Error(),
			Data: fiber.Map{"maxDevices": maxErr.Limit},
		})
	}
	var authErr *identity.AuthError
	if errors.As(err, &authErr) {
		return c.Status(http.StatusUnauthorized).JSON(model.ErrorWithCode(model.AuthFailedCode, authErr.Message))
	}
	return c.Status(http.StatusBadGateway).JSON(model.Error(err.Error()))
}
