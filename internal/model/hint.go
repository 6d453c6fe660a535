package model

import "time"

// FederatedHint is cached display data for the last successful federated
// sign-in, used to prefill a "continue as" affordance on repeat visits.
type FederatedHint struct {
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoURL"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
