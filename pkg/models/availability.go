package models

import "time"

// AvailabilityStatus is the state of a device's availability poll loop.
type AvailabilityStatus string

const (
	AvailabilityIdle        AvailabilityStatus = "idle"
	AvailabilityChecking    AvailabilityStatus = "checking"
	AvailabilityAvailable   AvailabilityStatus = "available"
	AvailabilityUnavailable AvailabilityStatus = "unavailable"
	AvailabilityStopped     AvailabilityStatus = "stopped"
)

// AvailabilityState is the latest reachability signal for one device.
// IsAvailable is nil until the first check resolves.
type AvailabilityState struct {
	DeviceID      int64              `json:"device_id"`
	Status        AvailabilityStatus `json:"status"`
	IsAvailable   *bool              `json:"is_available"`
	LastCheckedAt time.Time          `json:"last_checked_at,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
}
