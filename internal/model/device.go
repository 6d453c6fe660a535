package model

import "time"

// DeviceRecord identifies one authenticated client installation for a user.
// LastActive updates on every successful authentication from that device.
type DeviceRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	LastActive time.Time `json:"lastActive"`
}

// DefaultMaxDevices is the concurrent-device ceiling applied per user
// unless overridden by configuration.
const DefaultMaxDevices = 3
