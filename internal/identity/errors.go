package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSignedIn is returned when an operation needs an authenticated
	// principal and none is present.
	ErrNotSignedIn = errors.New("not signed in")

	// ErrReauthRequired is returned when a reauthentication attempt fails,
	// typically a wrong password during device removal. The UI should prompt
	// for a retry rather than treat this as a transient fault.
	ErrReauthRequired = errors.New("reauthentication required")
)

// AuthError is a provider-side authentication failure, forwarded opaquely.
// It must not be conflated with capacity errors.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("authentication failed: %s", e.Message)
	}
	return fmt.Sprintf("authentication failed: %s (%s)", e.Message, e.Code)
}
