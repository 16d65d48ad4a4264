// Package main provides a CI-friendly smoke test for the warden session server.
//
// It validates:
//   - admission up to the device limit
//   - selection-required on the device past the limit
//   - eviction of a chosen session + admission of the new device
//   - change-feed fanout of the eviction event over WebSocket
//   - liveness polling detecting the forced logout on the victim device
//   - idempotent logout
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"warden/internal/agent"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const feedSubprotocol = "warden.feed.v1"

type feedEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	DeviceID  string    `json:"deviceId"`
	At        time.Time `json:"at"`
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "warden server base URL")
		user    = flag.String("user", "smoke-user", "user id (header identity mode)")
		header  = flag.String("header", "X-Warden-User", "identity header name (empty to disable)")
		token   = flag.String("token", "", "bearer token (JWT identity mode)")
		devices = flag.Int("devices", 3, "configured device limit on the server")
		timeout = flag.Duration("timeout", 7*time.Second, "per-step timeout")
		verbose = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if *devices < 1 {
		fatalf("invalid -devices: %d", *devices)
	}

	client := &agent.Client{
		BaseURL: *baseURL,
		Token:   *token,
	}
	if *token == "" {
		client.UserHeader = *header
		client.UserID = *user
	}

	root := context.Background()

	// Fill the limit.
	victims := make([]string, 0, *devices)
	for i := 1; i <= *devices; i++ {
		dev := fmt.Sprintf("smoke-dev-%d", i)
		res := mustCheck(root, client, dev, *timeout)
		if !res.Allowed {
			fatalf("device %s: expected admission, got %+v", dev, res)
		}
		victims = append(victims, res.SessionID)
		if *verbose {
			fmt.Printf("admitted: %s session=%s\n", dev, res.SessionID)
		}
	}

	feed := mustConnectFeed(root, *baseURL, *header, *user, *token, *timeout)
	defer feed.CloseNow()

	// One past the limit: selection required, caller excluded from candidates.
	extra := fmt.Sprintf("smoke-dev-%d", *devices+1)
	res := mustCheck(root, client, extra, *timeout)
	if res.Allowed {
		fatalf("device %s admitted past the limit", extra)
	}
	if !res.NeedsDeviceSelection || len(res.ActiveSessions) != *devices {
		fatalf("expected selection with %d candidates, got %+v", *devices, res)
	}
	for _, c := range res.ActiveSessions {
		if c.ID == "" {
			fatalf("candidate with empty session id: %+v", c)
		}
	}

	// Evict the oldest candidate and take its place.
	victim := res.ActiveSessions[0].ID
	newSession, err := client.ForceLogout(root, victim, extra, "Smoke CLI", "warden-session-smoke")
	if err != nil {
		fatalf("force-logout: %v", err)
	}
	if *verbose {
		fmt.Printf("evicted: %s -> new session %s\n", victim, newSession)
	}

	mustReceiveEvent(root, feed, "evicted", victim, *timeout)

	// The victim's liveness poll must observe the forced logout.
	victimDev := victimDeviceFor(victims, victim)
	mon := agent.NewMonitor(nil, agent.Config{
		Grace:    100 * time.Millisecond,
		Interval: 250 * time.Millisecond,
	}, client, victimDev)

	forced := make(chan struct{})
	mon.OnForcedLogout = func() { close(forced) }

	monCtx, cancel := context.WithTimeout(root, *timeout)
	go mon.Run(monCtx)

	select {
	case <-forced:
	case <-monCtx.Done():
		fatalf("victim %s never observed forced logout", victimDev)
	}
	cancel()

	// Logout twice: the second call must also succeed.
	if err := client.Logout(root, extra); err != nil {
		fatalf("logout: %v", err)
	}
	if err := client.Logout(root, extra); err != nil {
		fatalf("repeat logout: %v", err)
	}

	fmt.Printf("OK: user=%s devices=%d evicted=%s new_session=%s\n", *user, *devices, victim, newSession)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustCheck(parent context.Context, c *agent.Client, deviceID string, stepTimeout time.Duration) agent.CheckResult {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	res, err := c.Check(ctx, deviceID, "Smoke CLI", "warden-session-smoke")
	if err != nil {
		fatalf("check %s: %v", deviceID, err)
	}
	return res
}

func mustConnectFeed(parent context.Context, baseURL, header, user, token string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws"

	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	} else if header != "" {
		h.Set(header, user)
	}
	h.Set("Origin", "http://localhost")

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{feedSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect feed: %v", err)
	}
	return conn
}

// mustReceiveEvent reads the feed until it sees the wanted event type for the
// given session, skipping unrelated events (admissions for the smoke devices).
func mustReceiveEvent(parent context.Context, conn *websocket.Conn, wantType, wantSession string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		var ev feedEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			fatalf("read feed (waiting for %s of %s): %v", wantType, wantSession, err)
		}
		if ev.Type == wantType && ev.SessionID == wantSession {
			return
		}
	}
}

func victimDeviceFor(sessions []string, victimSession string) string {
	for i, s := range sessions {
		if s == victimSession {
			return fmt.Sprintf("smoke-dev-%d", i+1)
		}
	}
	// Candidates are oldest-first, so the fallback is the first device.
	return "smoke-dev-1"
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "session-smoke: "+format+"\n", args...)
	os.Exit(1)
}
