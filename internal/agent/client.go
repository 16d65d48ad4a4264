package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized is returned when the server rejects the agent's identity.
var ErrUnauthorized = errors.New("agent: unauthorized")

const maxResponseBytes = 1 << 20 // 1MiB

// ActiveSession is an eviction candidate as reported by the server.
type ActiveSession struct {
	ID           string    `json:"id"`
	DeviceName   string    `json:"deviceName"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CheckResult is the outcome of an admission check.
type CheckResult struct {
	Allowed              bool            `json:"allowed"`
	SessionID            string          `json:"sessionId"`
	NeedsDeviceSelection bool            `json:"needsDeviceSelection"`
	ActiveSessions       []ActiveSession `json:"activeSessions"`
	Message              string          `json:"message"`
}

// VerifyResult is the outcome of a liveness poll.
type VerifyResult struct {
	Valid          bool   `json:"valid"`
	SessionID      string `json:"sessionId"`
	ForceLoggedOut bool   `json:"forceLoggedOut"`
	Message        string `json:"message"`
}

// Client talks to the session endpoints on behalf of one device.
//
// Token is sent as a bearer credential; UserHeader is a dev-mode alternative
// that names the user directly and must match the server's header source.
type Client struct {
	BaseURL    string
	Token      string
	UserHeader string
	UserID     string
	HTTPClient *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Check runs the admission check for this device.
func (c *Client) Check(ctx context.Context, deviceID, deviceName, userAgent string) (CheckResult, error) {
	var res CheckResult
	err := c.post(ctx, "/sessions/check", map[string]string{
		"deviceId":   deviceID,
		"deviceName": deviceName,
		"userAgent":  userAgent,
	}, &res)
	return res, err
}

// Verify polls the liveness of this device's session.
func (c *Client) Verify(ctx context.Context, deviceID string) (VerifyResult, error) {
	var res VerifyResult
	err := c.post(ctx, "/sessions/verify", map[string]string{"deviceId": deviceID}, &res)
	return res, err
}

// Logout deactivates this device's own session row. Idempotent.
func (c *Client) Logout(ctx context.Context, deviceID string) error {
	var res struct {
		Success bool `json:"success"`
	}
	if err := c.post(ctx, "/sessions/logout", map[string]string{"deviceId": deviceID}, &res); err != nil {
		return err
	}
	if !res.Success {
		return errors.New("agent: logout not acknowledged")
	}
	return nil
}

// ForceLogout evicts the chosen session and admits this device in its place.
// Returns the new session id.
func (c *Client) ForceLogout(ctx context.Context, sessionIDToLogout, newDeviceID, deviceName, userAgent string) (string, error) {
	var res struct {
		Success   bool   `json:"success"`
		SessionID string `json:"sessionId"`
	}
	err := c.post(ctx, "/sessions/force-logout", map[string]string{
		"sessionIdToLogout": sessionIDToLogout,
		"newDeviceId":       newDeviceID,
		"deviceName":        deviceName,
		"userAgent":         userAgent,
	}, &res)
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", errors.New("agent: eviction not acknowledged")
	}
	return res.SessionID, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("agent: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("agent: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.UserHeader != "" && c.UserID != "" {
		req.Header.Set(c.UserHeader, c.UserID)
	}

	res, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("agent: %s: %w", path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("agent: read %s response: %w", path, err)
	}

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case res.StatusCode != http.StatusOK:
		return fmt.Errorf("agent: %s: unexpected status %d: %s", path, res.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("agent: decode %s response: %w", path, err)
	}
	return nil
}
