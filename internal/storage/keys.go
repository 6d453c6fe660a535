package storage

// Keys used in the local store. Components own their keys exclusively:
// the token store owns the auth.* keys, the device identity manager owns
// device.id, the registry client owns device.registry_mirror and the
// hint cache owns auth.federated_hint.
const (
	KeyAuthToken      = "auth.token"
	KeyTokenExpiry    = "auth.token_expiry"
	KeyLastTokenWrite = "auth.last_token_write"
	KeyDeviceID       = "device.id"
	KeyRegistryMirror = "device.registry_mirror"
	KeyFederatedHint  = "auth.federated_hint"
)

// ProfileTouchKey returns the per-user key recording the last profile update.
func ProfileTouchKey(userID string) string {
	return "profile.touch." + userID
}
