// Package feed pushes device-session change events to connected clients.
//
// The feed is an optional UI optimization layered over the store's change
// stream: a device that misses an event still converges through liveness
// polling, so delivery here is strictly best-effort and never blocks the
// admission path.
package feed

import (
	"log/slog"
	"sync"

	"warden/internal/session"
)

// Client represents one subscribed feed connection.
//
// Send is intentionally NOT closed by the hub to keep concurrent publishes
// safe; done signals the connection goroutines to stop. Close is idempotent.
type Client struct {
	UserID string
	Send   chan session.Event

	done      chan struct{}
	closeOnce sync.Once
}

// Done returns a channel closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close signals the client goroutines to stop (idempotent).
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Hub fans device-session events out to each user's subscribed connections.
// It implements session.Notifier.
type Hub struct {
	log *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[*Client]struct{}
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:  log,
		subs: make(map[string]map[*Client]struct{}),
	}
}

// Subscribe registers a new feed client for the user.
func (h *Hub) Subscribe(userID string, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 16
	}
	c := &Client{
		UserID: userID,
		Send:   make(chan session.Event, queueSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[userID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.subs[userID] = set
	}
	set[c] = struct{}{}
	return c
}

// Unsubscribe removes the client and signals its goroutines to stop.
// Removal happens before Close so no publisher can hold a stale reference.
func (h *Hub) Unsubscribe(c *Client) {
	if c == nil {
		return
	}

	h.mu.Lock()
	if set, ok := h.subs[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, c.UserID)
		}
	}
	h.mu.Unlock()

	c.Close()
}

// Publish delivers the event to every connection of the user. A client whose
// queue is full misses the event and catches up via liveness polling.
func (h *Hub) Publish(userID string, ev session.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.subs[userID] {
		select {
		case c.Send <- ev:
		default:
			h.log.Debug("feed.publish.drop", "user_id", userID, "type", string(ev.Type))
		}
	}
}
