package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// EventType labels change-feed events emitted by the service.
type EventType string

const (
	// EventAdmitted is published when a device session becomes active.
	EventAdmitted EventType = "admitted"
	// EventEvicted is published when a session is deactivated by another device.
	EventEvicted EventType = "evicted"
	// EventLoggedOut is published when a device deactivates its own session.
	EventLoggedOut EventType = "logged_out"
)

// Event describes one device-session state change for a user.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	DeviceID  string    `json:"deviceId,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier receives per-user change events. Publishing is best-effort push
// for UI refresh; liveness polling is the sole correctness-bearing mechanism,
// so implementations must never block or fail the calling operation.
type Notifier interface {
	Publish(userID string, ev Event)
}

// NopNotifier discards all events.
type NopNotifier struct{}

// Publish discards the event.
func (NopNotifier) Publish(string, Event) {}

// Service implements the high-level admission, eviction, liveness, and logout
// operations over a Store.
type Service struct {
	cfg    Config
	log    *slog.Logger
	store  Store
	notify Notifier
}

// NewService constructs a Service. A nil notifier disables change events.
func NewService(cfg Config, log *slog.Logger, store Store, notify Notifier) *Service {
	if log == nil {
		log = slog.Default()
	}
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Service{cfg: cfg, log: log, store: store, notify: notify}
}

// MaxDevices returns the configured per-user device limit.
func (s *Service) MaxDevices() int { return s.cfg.MaxDevices }

// Candidate is one eviction candidate offered to a device that hit the limit.
type Candidate struct {
	ID           string
	DeviceName   string
	LastActivity time.Time
	CreatedAt    time.Time
}

// AdmissionResult is the outcome of CheckAdmission.
//
// When Allowed is false, Candidates holds the user's other active sessions;
// the caller must evict one of them (or log out) before proceeding.
type AdmissionResult struct {
	Allowed    bool
	SessionID  string
	Candidates []Candidate
}

// VerifyResult is the outcome of Verify.
type VerifyResult struct {
	Valid     bool
	SessionID string
}

// CheckAdmission upserts the caller's (userID, deviceID) row and re-reads the
// active set.
//
// A device already counted among the limit is renewed rather than duplicated,
// so repeated checks from the same device never inflate the count. When the
// post-upsert active count exceeds the limit the result carries the other
// active sessions as eviction candidates; the caller's own device is never a
// candidate for its own displacement.
func (s *Service) CheckAdmission(ctx context.Context, now time.Time, userID string, dev Device) (AdmissionResult, error) {
	if userID == "" || dev.DeviceID == "" {
		return AdmissionResult{}, ErrInvalidInput
	}

	row, err := s.store.Upsert(ctx, now, userID, dev)
	if err != nil {
		return AdmissionResult{}, fmt.Errorf("session: admission upsert: %w", err)
	}

	active, err := s.store.ListActive(ctx, userID)
	if err != nil {
		return AdmissionResult{}, fmt.Errorf("session: admission read: %w", err)
	}

	if len(active) > s.cfg.MaxDevices {
		candidates := make([]Candidate, 0, len(active)-1)
		for _, a := range active {
			if a.DeviceID == dev.DeviceID {
				continue
			}
			candidates = append(candidates, Candidate{
				ID:           a.ID,
				DeviceName:   a.DeviceName,
				LastActivity: a.LastActivity,
				CreatedAt:    a.CreatedAt,
			})
		}
		return AdmissionResult{Allowed: false, Candidates: candidates}, nil
	}

	s.notify.Publish(userID, Event{Type: EventAdmitted, SessionID: row.ID, DeviceID: dev.DeviceID, At: now})
	return AdmissionResult{Allowed: true, SessionID: row.ID}, nil
}

// Evict deactivates the chosen session and admits the requesting device in
// its place.
//
// The two steps run in order and the second never runs if the first fails, so
// a failed eviction cannot produce a phantom admission. If the eviction
// lands but the admission upsert fails, the user is left under the limit and
// the caller retries admission; the upsert is idempotent so the retry is safe.
func (s *Service) Evict(ctx context.Context, now time.Time, userID, evictSessionID string, dev Device) (string, error) {
	if userID == "" || evictSessionID == "" || dev.DeviceID == "" {
		return "", ErrInvalidInput
	}

	if err := s.store.Deactivate(ctx, now, userID, evictSessionID); err != nil {
		return "", fmt.Errorf("session: evict %s: %w", evictSessionID, err)
	}
	s.notify.Publish(userID, Event{Type: EventEvicted, SessionID: evictSessionID, At: now})

	row, err := s.store.Upsert(ctx, now, userID, dev)
	if err != nil {
		return "", fmt.Errorf("session: admit after evict: %w", err)
	}

	s.notify.Publish(userID, Event{Type: EventAdmitted, SessionID: row.ID, DeviceID: dev.DeviceID, At: now})
	return row.ID, nil
}

// Verify reports whether the exact (userID, deviceID) pair is still an active
// member, refreshing last_activity on the positive path.
//
// The negative path never mutates state: an evicted device observing
// Valid=false must be able to poll again and see the same answer.
func (s *Service) Verify(ctx context.Context, now time.Time, userID, deviceID string) (VerifyResult, error) {
	if userID == "" || deviceID == "" {
		return VerifyResult{}, ErrInvalidInput
	}

	row, err := s.store.GetActiveByDevice(ctx, userID, deviceID)
	if errors.Is(err, ErrNotFound) {
		return VerifyResult{Valid: false}, nil
	}
	if err != nil {
		return VerifyResult{}, fmt.Errorf("session: verify read: %w", err)
	}

	// A failed activity refresh does not invalidate an active session.
	if err := s.store.Touch(ctx, now, row.ID); err != nil {
		s.log.Error("session.verify.touch.fail", "err", err, "session_id", row.ID)
	}

	return VerifyResult{Valid: true, SessionID: row.ID}, nil
}

// Logout deactivates the caller's own (userID, deviceID) row.
// Idempotent: logging out an already-inactive device succeeds.
func (s *Service) Logout(ctx context.Context, now time.Time, userID, deviceID string) error {
	if userID == "" || deviceID == "" {
		return ErrInvalidInput
	}

	if err := s.store.DeactivateDevice(ctx, now, userID, deviceID); err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}

	s.notify.Publish(userID, Event{Type: EventLoggedOut, DeviceID: deviceID, At: now})
	return nil
}
