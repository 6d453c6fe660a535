package model

import "time"

// Signals is the snapshot of session state exposed to the UI layer.
type Signals struct {
	AuthState            AuthState      `json:"authState"`
	RemainingSessionTime *time.Duration `json:"remainingSessionTime,omitempty"`
	MaxDevicesError      bool           `json:"maxDevicesError"`
	MaxDevices           int            `json:"maxDevices"`
	CachedFederatedHint  *FederatedHint `json:"cachedFederatedHint,omitempty"`
}
