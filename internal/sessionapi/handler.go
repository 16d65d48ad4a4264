// Package sessionapi exposes the device-session admission protocol over HTTP.
package sessionapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"warden/internal/device"
	"warden/internal/identity"
	"warden/internal/session"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Handler wires the session HTTP endpoints to the admission service.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions *session.Service
	source   identity.SessionSource
	metrics  *Metrics

	// pool is used for best-effort audit inserts only; nil disables auditing.
	pool *pgxpool.Pool
}

// NewHandler constructs a session API handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, source identity.SessionSource, metrics *Metrics, pool *pgxpool.Pool) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if sessions == nil {
		return nil, errors.New("sessionapi: nil session service")
	}
	if source == nil {
		return nil, errors.New("sessionapi: nil identity source")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	return &Handler{
		log:      log,
		cfg:      cfg,
		sessions: sessions,
		source:   source,
		metrics:  metrics,
		pool:     pool,
	}, nil
}

// Register wires session routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/sessions/check", h.handleCheck)
	mux.HandleFunc("/sessions/verify", h.handleVerify)
	mux.HandleFunc("/sessions/logout", h.handleLogout)
	mux.HandleFunc("/sessions/force-logout", h.handleForceLogout)
}

// ---- handlers ----

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req checkRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	dev, ok := h.deviceFromRequest(r, req.DeviceID, req.DeviceName, req.UserAgent)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "deviceId is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	res, err := h.sessions.CheckAdmission(ctx, now, userID, dev)
	if err != nil {
		h.metrics.admission("error")
		h.log.Error("session.check.fail", "err", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "store_error", "database error")
		return
	}

	if !res.Allowed {
		h.metrics.admission("selection_required")
		h.auditSelectionRequired(ctx, userID, dev.DeviceID, clientIP(r, h.cfg.TrustProxy), dev.UserAgent, len(res.Candidates))
		writeJSON(w, http.StatusOK, checkResponse{
			Allowed:              false,
			NeedsDeviceSelection: true,
			ActiveSessions:       toActiveSessions(res.Candidates),
			Message:              h.limitMessage(),
		})
		return
	}

	h.metrics.admission("admitted")
	h.auditAdmitted(ctx, userID, res.SessionID, dev.DeviceID, clientIP(r, h.cfg.TrustProxy), dev.UserAgent)
	writeJSON(w, http.StatusOK, checkResponse{
		Allowed:   true,
		SessionID: res.SessionID,
		Message:   "Session verified",
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req verifyRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "deviceId is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	res, err := h.sessions.Verify(ctx, now, userID, req.DeviceID)
	if err != nil {
		h.metrics.verify("error")
		h.log.Error("session.verify.fail", "err", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "store_error", "database error")
		return
	}

	if !res.Valid {
		h.metrics.verify("invalid")
		h.auditForcedLogout(ctx, userID, req.DeviceID, clientIP(r, h.cfg.TrustProxy), r.UserAgent())
		writeJSON(w, http.StatusOK, verifyResponse{
			Valid:          false,
			ForceLoggedOut: true,
			Message:        "This device has been logged out",
		})
		return
	}

	h.metrics.verify("valid")
	writeJSON(w, http.StatusOK, verifyResponse{
		Valid:     true,
		SessionID: res.SessionID,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req logoutRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "deviceId is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	if err := h.sessions.Logout(ctx, now, userID, req.DeviceID); err != nil {
		h.log.Error("session.logout.fail", "err", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "store_error", "failed to logout")
		return
	}

	h.metrics.logout()
	h.auditLogout(ctx, userID, req.DeviceID, clientIP(r, h.cfg.TrustProxy), r.UserAgent())
	writeJSON(w, http.StatusOK, logoutResponse{
		Success: true,
		Message: "Logged out successfully",
	})
}

func (h *Handler) handleForceLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req forceLogoutRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.SessionIDToLogout) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "sessionIdToLogout is required")
		return
	}
	dev, ok := h.deviceFromRequest(r, req.NewDeviceID, req.DeviceName, req.UserAgent)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "newDeviceId is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	sessionID, err := h.sessions.Evict(ctx, now, userID, req.SessionIDToLogout, dev)
	if err != nil {
		h.metrics.eviction("error")
		// A missing victim row is indistinguishable from a leaked id scoped
		// to another user, so it surfaces as a plain store failure.
		h.log.Error("session.evict.fail", "err", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "store_error", "failed to logout device")
		return
	}

	h.metrics.eviction("ok")
	h.auditEvicted(ctx, userID, req.SessionIDToLogout, sessionID, clientIP(r, h.cfg.TrustProxy), dev.UserAgent)
	writeJSON(w, http.StatusOK, forceLogoutResponse{
		Success:   true,
		SessionID: sessionID,
		Message:   "Device logged out and new session created",
	})
}

// ---- helpers ----

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return "", false
	}
	userID, err := h.source.UserID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return "", false
	}
	return userID, true
}

// deviceFromRequest fills informational fields from the transport when the
// client omits them; the device id itself has no fallback.
func (h *Handler) deviceFromRequest(r *http.Request, id, name, ua string) (session.Device, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return session.Device{}, false
	}
	if strings.TrimSpace(ua) == "" {
		ua = strings.TrimSpace(r.UserAgent())
	}
	if strings.TrimSpace(name) == "" {
		name = device.DescribeUserAgent(ua)
	}
	return session.Device{DeviceID: id, DeviceName: name, UserAgent: ua}, true
}

func (h *Handler) limitMessage() string {
	return fmt.Sprintf("Maximum %d devices allowed. Please select a device to log out.", h.sessions.MaxDevices())
}

func toActiveSessions(cands []session.Candidate) []activeSessionResponse {
	out := make([]activeSessionResponse, 0, len(cands))
	for _, c := range cands {
		out = append(out, activeSessionResponse{
			ID:           c.ID,
			DeviceName:   c.DeviceName,
			LastActivity: c.LastActivity,
			CreatedAt:    c.CreatedAt,
		})
	}
	return out
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
