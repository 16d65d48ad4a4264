package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore is a dev-only fallback when DB is not configured.
// The single mutex gives it the same per-row atomicity the Postgres upsert
// provides, which keeps service-level tests honest about the protocol.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*DeviceSession
	byUser map[string]map[string]*DeviceSession // user_id -> device_id -> row
}

// NewMemoryStore constructs an in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*DeviceSession),
		byUser: make(map[string]map[string]*DeviceSession),
	}
}

// Upsert activates the (userID, deviceID) row or inserts it active.
func (s *MemoryStore) Upsert(ctx context.Context, now time.Time, userID string, dev Device) (DeviceSession, error) {
	if err := ctx.Err(); err != nil {
		return DeviceSession{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	devices := s.byUser[userID]
	if devices == nil {
		devices = make(map[string]*DeviceSession)
		s.byUser[userID] = devices
	}

	if row, ok := devices[dev.DeviceID]; ok {
		row.IsActive = true
		row.LastActivity = now
		row.DeviceName = dev.DeviceName
		row.UserAgent = dev.UserAgent
		return *row, nil
	}

	row := &DeviceSession{
		ID:           ulid.Make().String(),
		UserID:       userID,
		DeviceID:     dev.DeviceID,
		DeviceName:   dev.DeviceName,
		UserAgent:    dev.UserAgent,
		LastActivity: now,
		IsActive:     true,
		CreatedAt:    now,
	}
	devices[dev.DeviceID] = row
	s.byID[row.ID] = row
	return *row, nil
}

// ListActive returns all active rows for the user, oldest first.
func (s *MemoryStore) ListActive(ctx context.Context, userID string) ([]DeviceSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []DeviceSession
	for _, row := range s.byUser[userID] {
		if row.IsActive {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetActiveByDevice loads the active row for an exact (userID, deviceID) pair.
func (s *MemoryStore) GetActiveByDevice(ctx context.Context, userID, deviceID string) (DeviceSession, error) {
	if err := ctx.Err(); err != nil {
		return DeviceSession{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byUser[userID][deviceID]
	if !ok || !row.IsActive {
		return DeviceSession{}, ErrNotFound
	}
	return *row, nil
}

// Deactivate marks a session inactive by id, scoped by userID.
func (s *MemoryStore) Deactivate(ctx context.Context, _ time.Time, userID, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byID[sessionID]
	if !ok || row.UserID != userID {
		return ErrNotFound
	}
	row.IsActive = false
	return nil
}

// DeactivateDevice marks the (userID, deviceID) row inactive (idempotent).
func (s *MemoryStore) DeactivateDevice(ctx context.Context, _ time.Time, userID, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if row, ok := s.byUser[userID][deviceID]; ok {
		row.IsActive = false
	}
	return nil
}

// Touch refreshes last_activity for a session.
func (s *MemoryStore) Touch(ctx context.Context, now time.Time, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if row, ok := s.byID[sessionID]; ok {
		row.LastActivity = now
	}
	return nil
}
