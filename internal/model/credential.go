package model

import "time"

// Credential is the locally persisted bearer token and its expiry.
// If Token is present ExpiresAt must also be present; absence of either
// is treated as expired.
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
