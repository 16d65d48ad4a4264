package sessionapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"warden/internal/identity"
	"warden/internal/session"
)

func newTestServer(t *testing.T, maxDevices int) (*httptest.Server, *session.MemoryStore) {
	t.Helper()

	store := session.NewMemoryStore()
	svc := session.NewService(session.Config{MaxDevices: maxDevices}, nil, store, nil)

	h, err := NewHandler(nil, Config{MaxBodyBytes: 1 << 20}, svc, identity.HeaderSource{}, nil, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, store
}

func doSessionJSON(t *testing.T, client *http.Client, url, userID string, payload any) (int, []byte) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-Warden-User", userID)
	}

	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res.StatusCode, b
}

func TestSessionAPI_CheckRequiresAuth(t *testing.T) {
	ts, _ := newTestServer(t, 3)

	status, _ := doSessionJSON(t, ts.Client(), ts.URL+"/sessions/check", "", map[string]any{
		"deviceId": "dev-a",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", status)
	}
}

func TestSessionAPI_CheckRequiresDeviceID(t *testing.T) {
	ts, _ := newTestServer(t, 3)

	status, body := doSessionJSON(t, ts.Client(), ts.URL+"/sessions/check", "user-1", map[string]any{
		"deviceName": "Chrome on Windows",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 without deviceId, got %d: %s", status, body)
	}
}

func TestSessionAPI_CheckAdmitsUnderLimit(t *testing.T) {
	ts, _ := newTestServer(t, 3)
	client := ts.Client()

	for _, dev := range []string{"dev-a", "dev-b", "dev-c"} {
		status, body := doSessionJSON(t, client, ts.URL+"/sessions/check", "user-1", map[string]any{
			"deviceId": dev,
		})
		if status != http.StatusOK {
			t.Fatalf("check %s: expected 200, got %d: %s", dev, status, body)
		}

		var res checkResponse
		if err := json.Unmarshal(body, &res); err != nil {
			t.Fatalf("decode check response: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("check %s: expected allowed, got %+v", dev, res)
		}
		if res.SessionID == "" {
			t.Fatalf("check %s: missing sessionId", dev)
		}
		if res.Message != "Session verified" {
			t.Fatalf("check %s: unexpected message %q", dev, res.Message)
		}
	}
}

func TestSessionAPI_CheckOverLimitExcludesCaller(t *testing.T) {
	ts, _ := newTestServer(t, 3)
	client := ts.Client()

	for _, dev := range []string{"dev-a", "dev-b", "dev-c"} {
		doSessionJSON(t, client, ts.URL+"/sessions/check", "user-1", map[string]any{"deviceId": dev})
	}

	status, body := doSessionJSON(t, client, ts.URL+"/sessions/check", "user-1", map[string]any{
		"deviceId":   "dev-d",
		"deviceName": "Phone",
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 over limit, got %d: %s", status, body)
	}

	var res checkResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode check response: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected selection required, got allowed: %+v", res)
	}
	if !res.NeedsDeviceSelection {
		t.Fatalf("expected needsDeviceSelection, got %+v", res)
	}
	if res.Message != "Maximum 3 devices allowed. Please select a device to log out." {
		t.Fatalf("unexpected message %q", res.Message)
	}
	if len(res.ActiveSessions) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(res.ActiveSessions))
	}
	for _, c := range res.ActiveSessions {
		if c.DeviceName == "Phone" {
			t.Fatalf("caller's own device listed as eviction candidate: %+v", c)
		}
	}
}

func TestSessionAPI_ForceLogoutEvictsAndAdmits(t *testing.T) {
	ts, _ := newTestServer(t, 1)
	client := ts.Client()

	status, body := doSessionJSON(t, client, ts.URL+"/sessions/check", "user-1", map[string]any{"deviceId": "dev-a"})
	if status != http.StatusOK {
		t.Fatalf("admit dev-a: got %d: %s", status, body)
	}

	status, body = doSessionJSON(t, client, ts.URL+"/sessions/check", "user-1", map[string]any{"deviceId": "dev-b"})
	if status != http.StatusOK {
		t.Fatalf("check dev-b: got %d: %s", status, body)
	}
	var blocked checkResponse
	if err := json.Unmarshal(body, &blocked); err != nil {
		t.Fatalf("decode blocked: %v", err)
	}
	if blocked.Allowed || len(blocked.ActiveSessions) != 1 {
		t.Fatalf("expected one candidate, got %+v", blocked)
	}

	status, body = doSessionJSON(t, client, ts.URL+"/sessions/force-logout", "user-1", map[string]any{
		"sessionIdToLogout": blocked.ActiveSessions[0].ID,
		"newDeviceId":       "dev-b",
	})
	if status != http.StatusOK {
		t.Fatalf("force-logout: got %d: %s", status, body)
	}
	var evictRes forceLogoutResponse
	if err := json.Unmarshal(body, &evictRes); err != nil {
		t.Fatalf("decode force-logout: %v", err)
	}
	if !evictRes.Success || evictRes.SessionID == "" {
		t.Fatalf("unexpected force-logout response %+v", evictRes)
	}
	if evictRes.Message != "Device logged out and new session created" {
		t.Fatalf("unexpected message %q", evictRes.Message)
	}

	// The victim polls and learns it was evicted.
	status, body = doSessionJSON(t, client, ts.URL+"/sessions/verify", "user-1", map[string]any{"deviceId": "dev-a"})
	if status != http.StatusOK {
		t.Fatalf("verify dev-a: got %d: %s", status, body)
	}
	var vres verifyResponse
	if err := json.Unmarshal(body, &vres); err != nil {
		t.Fatalf("decode verify: %v", err)
	}
	if vres.Valid || !vres.ForceLoggedOut {
		t.Fatalf("expected forced logout for victim, got %+v", vres)
	}
	if vres.Message != "This device has been logged out" {
		t.Fatalf("unexpected message %q", vres.Message)
	}

	// The new device verifies fine.
	status, body = doSessionJSON(t, client, ts.URL+"/sessions/verify", "user-1", map[string]any{"deviceId": "dev-b"})
	if status != http.StatusOK {
		t.Fatalf("verify dev-b: got %d: %s", status, body)
	}
	if err := json.Unmarshal(body, &vres); err != nil {
		t.Fatalf("decode verify: %v", err)
	}
	if !vres.Valid || vres.SessionID != evictRes.SessionID {
		t.Fatalf("expected valid session %q, got %+v", evictRes.SessionID, vres)
	}
}

func TestSessionAPI_ForceLogoutUnknownSession(t *testing.T) {
	ts, _ := newTestServer(t, 3)

	status, body := doSessionJSON(t, ts.Client(), ts.URL+"/sessions/force-logout", "user-1", map[string]any{
		"sessionIdToLogout": "no-such-session",
		"newDeviceId":       "dev-x",
	})
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unknown victim, got %d: %s", status, body)
	}

	// Step two must not have run: the new device is still unknown.
	status, body = doSessionJSON(t, ts.Client(), ts.URL+"/sessions/verify", "user-1", map[string]any{"deviceId": "dev-x"})
	if status != http.StatusOK {
		t.Fatalf("verify dev-x: got %d: %s", status, body)
	}
	var vres verifyResponse
	if err := json.Unmarshal(body, &vres); err != nil {
		t.Fatalf("decode verify: %v", err)
	}
	if vres.Valid {
		t.Fatalf("device admitted despite failed eviction: %+v", vres)
	}
}

func TestSessionAPI_LogoutIsIdempotent(t *testing.T) {
	ts, _ := newTestServer(t, 3)
	client := ts.Client()

	doSessionJSON(t, client, ts.URL+"/sessions/check", "user-1", map[string]any{"deviceId": "dev-a"})

	for i := 0; i < 2; i++ {
		status, body := doSessionJSON(t, client, ts.URL+"/sessions/logout", "user-1", map[string]any{"deviceId": "dev-a"})
		if status != http.StatusOK {
			t.Fatalf("logout #%d: got %d: %s", i+1, status, body)
		}
		var res logoutResponse
		if err := json.Unmarshal(body, &res); err != nil {
			t.Fatalf("decode logout: %v", err)
		}
		if !res.Success || res.Message != "Logged out successfully" {
			t.Fatalf("logout #%d: unexpected response %+v", i+1, res)
		}
	}
}

func TestSessionAPI_UsersAreIsolated(t *testing.T) {
	ts, _ := newTestServer(t, 1)
	client := ts.Client()

	status, body := doSessionJSON(t, client, ts.URL+"/sessions/check", "user-1", map[string]any{"deviceId": "dev-a"})
	if status != http.StatusOK {
		t.Fatalf("user-1 check: got %d: %s", status, body)
	}

	status, body = doSessionJSON(t, client, ts.URL+"/sessions/check", "user-2", map[string]any{"deviceId": "dev-a"})
	if status != http.StatusOK {
		t.Fatalf("user-2 check: got %d: %s", status, body)
	}
	var res checkResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("user-2 blocked by user-1's sessions: %+v", res)
	}
}
