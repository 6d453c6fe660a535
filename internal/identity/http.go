package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/adlens-labs/adlens-session/internal/common"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 5 // requests per second

	changeBuffer = 8
)

var _ Provider = (*HTTPProvider)(nil)

// HTTPProvider talks to the identity provider's HTTP/JSON API and tracks the
// current authenticated principal, emitting auth state changes as they occur.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter

	mu      sync.RWMutex
	current *Principal
	token   string
	changes chan AuthChange
}

// Option configures the provider.
type Option func(*HTTPProvider)

// WithLogger sets the logger.
func WithLogger(logger *common.Logger) Option {
	return func(p *HTTPProvider) {
		p.logger = logger
	}
}

// WithRateLimit sets the outbound request rate limit.
func WithRateLimit(requestsPerSecond int) Option {
	return func(p *HTTPProvider) {
		p.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(p *HTTPProvider) {
		p.httpClient.Timeout = timeout
	}
}

// NewHTTPProvider creates an identity provider client.
func NewHTTPProvider(baseURL, apiKey string, opts ...Option) (*HTTPProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	p := &HTTPProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
		changes: make(chan AuthChange, changeBuffer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// SignInWithPassword authenticates with email and password.
func (p *HTTPProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	return p.signIn(ctx, "/v1/sessions:password", map[string]string{
		"email":    email,
		"password": password,
	})
}

// SignInWithFederated completes a federated sign-in for the named provider.
func (p *HTTPProvider) SignInWithFederated(ctx context.Context, providerName string) (*Session, error) {
	return p.signIn(ctx, "/v1/sessions:federated", map[string]string{
		"provider": providerName,
	})
}

// CreateAccount registers a new account and signs it in.
func (p *HTTPProvider) CreateAccount(ctx context.Context, email, password string) (*Session, error) {
	return p.signIn(ctx, "/v1/accounts", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (p *HTTPProvider) signIn(ctx context.Context, path string, body map[string]string) (*Session, error) {
	var sess Session
	if err := p.post(ctx, path, body, &sess); err != nil {
		return nil, err
	}
	p.mu.Lock()
	principal := sess.Principal
	p.current = &principal
	p.token = sess.Token
	p.mu.Unlock()
	p.notify(&principal)
	return &sess, nil
}

// Reauthenticate re-verifies the current principal's password.
func (p *HTTPProvider) Reauthenticate(ctx context.Context, password string) error {
	current := p.Current()
	if current == nil {
		return ErrNotSignedIn
	}
	err := p.post(ctx, "/v1/sessions:reauth", map[string]string{
		"email":    current.Email,
		"password": password,
	}, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReauthRequired, err)
	}
	return nil
}

// SignOut clears provider-side state and emits a signed-out change.
func (p *HTTPProvider) SignOut(ctx context.Context) error {
	err := p.post(ctx, "/v1/sessions:revoke", nil, nil)
	p.mu.Lock()
	p.current = nil
	p.token = ""
	p.mu.Unlock()
	p.notify(nil)
	return err
}

// CurrentToken returns the bearer token, refreshing it when forced or absent.
func (p *HTTPProvider) CurrentToken(ctx context.Context, forceRefresh bool) (string, error) {
	p.mu.RLock()
	token := p.token
	signedIn := p.current != nil
	p.mu.RUnlock()
	if !signedIn {
		return "", ErrNotSignedIn
	}
	if !forceRefresh && token != "" {
		return token, nil
	}
	var refreshed struct {
		Token string `json:"token"`
	}
	if err := p.post(ctx, "/v1/token:refresh", nil, &refreshed); err != nil {
		return "", err
	}
	p.mu.Lock()
	p.token = refreshed.Token
	p.mu.Unlock()
	return refreshed.Token, nil
}

// Current returns the authenticated principal, or nil when signed out.
func (p *HTTPProvider) Current() *Principal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil
	}
	copied := *p.current
	return &copied
}

// AuthStateChanges returns the stream of sign-in/out notifications.
func (p *HTTPProvider) AuthStateChanges() <-chan AuthChange {
	return p.changes
}

func (p *HTTPProvider) notify(principal *Principal) {
	select {
	case p.changes <- AuthChange{Principal: principal}:
	default:
		p.logger.Debug().Msg("auth change dropped, stream full")
	}
}

func (p *HTTPProvider) post(ctx context.Context, path string, body any, result any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}
	p.mu.RLock()
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	p.mu.RUnlock()

	p.logger.Debug().Str("path", path).Msg("identity request")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAuthError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func decodeAuthError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Message == "" {
		payload.Message = strings.TrimSpace(string(raw))
		if payload.Message == "" {
			payload.Message = resp.Status
		}
	}
	return &AuthError{Code: payload.Code, Message: payload.Message}
}
