package model

import "time"

// Session models a row in the `devices` table: one logged-in client.
// LastActiveAt and ExpiresAt always mirror the iat/exp claims of the
// refresh token currently valid for the device, never the wall clock
// at write time.
type Session struct {
	DeviceID     string    // devices.device_id (uuid, stable across refreshes)
	UserID       uint64    // devices.user_id
	IP           string    // devices.ip
	Title        string    // devices.title (user agent)
	LastActiveAt time.Time // devices.last_active_at
	ExpiresAt    time.Time // devices.expires_at
}
