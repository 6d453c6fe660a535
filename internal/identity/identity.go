// Package identity exposes the external identity provider that performs
// password and federated authentication and issues opaque bearer tokens.
package identity

import "context"

// Principal is the authenticated account as reported by the provider.
type Principal struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

// Session is the result of a successful authentication.
type Session struct {
	Principal Principal `json:"principal"`
	Token     string    `json:"token"`
}

// AuthChange is emitted on the auth state stream whenever sign-in or
// sign-out occurs. Principal is nil when signed out.
type AuthChange struct {
	Principal *Principal
}

// Provider is the external identity provider boundary.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignInWithFederated(ctx context.Context, providerName string) (*Session, error)
	CreateAccount(ctx context.Context, email, password string) (*Session, error)
	Reauthenticate(ctx context.Context, password string) error
	SignOut(ctx context.Context) error
	CurrentToken(ctx context.Context, forceRefresh bool) (string, error)
	Current() *Principal
	AuthStateChanges() <-chan AuthChange
}
