package model

// AuthState describes the session lifecycle as observed by the UI layer.
type AuthState string

const (
	// StateIdle means no authenticated user.
	StateIdle AuthState = "IDLE"
	// StateActive means the stored credential is valid.
	StateActive AuthState = "ACTIVE"
	// StateExpiring means the credential is valid but below the warning threshold.
	StateExpiring AuthState = "EXPIRING"
	// StateExpired is terminal for a session and triggers forced sign-out.
	StateExpired AuthState = "EXPIRED"
)

func (s AuthState) String() string {
	return string(s)
}
