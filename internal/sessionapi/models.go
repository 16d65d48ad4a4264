package sessionapi

import "time"

// Wire format follows the admission protocol contract: camelCase field names,
// identity implicit from the bearer session on every endpoint.

type checkRequest struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	UserAgent  string `json:"userAgent"`
}

type activeSessionResponse struct {
	ID           string    `json:"id"`
	DeviceName   string    `json:"deviceName"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
}

type checkResponse struct {
	Allowed              bool                    `json:"allowed"`
	SessionID            string                  `json:"sessionId,omitempty"`
	NeedsDeviceSelection bool                    `json:"needsDeviceSelection,omitempty"`
	ActiveSessions       []activeSessionResponse `json:"activeSessions,omitempty"`
	Message              string                  `json:"message"`
}

type verifyRequest struct {
	DeviceID string `json:"deviceId"`
}

type verifyResponse struct {
	Valid          bool   `json:"valid"`
	SessionID      string `json:"sessionId,omitempty"`
	ForceLoggedOut bool   `json:"forceLoggedOut,omitempty"`
	Message        string `json:"message,omitempty"`
}

type logoutRequest struct {
	DeviceID string `json:"deviceId"`
}

type logoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type forceLogoutRequest struct {
	SessionIDToLogout string `json:"sessionIdToLogout"`
	NewDeviceID       string `json:"newDeviceId"`
	DeviceName        string `json:"deviceName"`
	UserAgent         string `json:"userAgent"`
}

type forceLogoutResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}
