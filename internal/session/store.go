package session

import (
	"context"
	"time"
)

// Device describes the requesting client device as reported at admission time.
// DeviceID is an opaque stable fingerprint supplied by the device identity
// provider; DeviceName and UserAgent are informational.
type Device struct {
	DeviceID   string
	DeviceName string
	UserAgent  string
}

// DeviceSession mirrors the warden.device_sessions row: one row per
// (user_id, device_id) pairing ever seen. Only rows with IsActive set count
// toward the per-user device limit; inactive rows are retained for history.
type DeviceSession struct {
	ID           string
	UserID       string
	DeviceID     string
	DeviceName   string
	UserAgent    string
	LastActivity time.Time
	IsActive     bool
	CreatedAt    time.Time
}

// Store abstracts persistence for device-session state.
//
// Implementations must make Upsert atomic on the (user_id, device_id)
// composite key; it is the only serialization point between concurrent
// admission checks for the same user.
type Store interface {
	// Upsert activates the (userID, dev.DeviceID) row, refreshing
	// last_activity, device_name, and user_agent; a missing row is inserted
	// active. The resulting row is returned.
	Upsert(ctx context.Context, now time.Time, userID string, dev Device) (DeviceSession, error)

	// ListActive returns all active rows for the user, oldest first.
	ListActive(ctx context.Context, userID string) ([]DeviceSession, error)

	// GetActiveByDevice loads the active row for an exact (userID, deviceID)
	// pair. Returns ErrNotFound when no such active row exists.
	GetActiveByDevice(ctx context.Context, userID, deviceID string) (DeviceSession, error)

	// Deactivate marks the row identified by sessionID inactive, scoped by
	// userID so a leaked id cannot evict another user's session. Returns
	// ErrNotFound when no row matched.
	Deactivate(ctx context.Context, now time.Time, userID, sessionID string) error

	// DeactivateDevice marks the (userID, deviceID) row inactive.
	// Idempotent: deactivating an already-inactive or unknown device succeeds.
	DeactivateDevice(ctx context.Context, now time.Time, userID, deviceID string) error

	// Touch refreshes last_activity for a session.
	Touch(ctx context.Context, now time.Time, sessionID string) error
}
