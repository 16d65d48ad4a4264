package sessionapi

import (
	"context"
	"encoding/json"
	"net"
	"strings"
)

func (h *Handler) auditAdmitted(ctx context.Context, userID string, sessionID string, deviceID string, ip net.IP, ua string) {
	h.insertAudit(ctx, "session.check.admitted", &userID, &sessionID, ip, ua, map[string]any{
		"device_id": deviceID,
	})
}

func (h *Handler) auditSelectionRequired(ctx context.Context, userID string, deviceID string, ip net.IP, ua string, candidates int) {
	h.insertAudit(ctx, "session.check.selection_required", &userID, nil, ip, ua, map[string]any{
		"device_id":  deviceID,
		"candidates": candidates,
	})
}

func (h *Handler) auditEvicted(ctx context.Context, userID string, victimSessionID string, newSessionID string, ip net.IP, ua string) {
	h.insertAudit(ctx, "session.evicted", &userID, &victimSessionID, ip, ua, map[string]any{
		"new_session_id": newSessionID,
	})
}

func (h *Handler) auditLogout(ctx context.Context, userID string, deviceID string, ip net.IP, ua string) {
	h.insertAudit(ctx, "session.logout", &userID, nil, ip, ua, map[string]any{
		"device_id": deviceID,
	})
}

func (h *Handler) auditForcedLogout(ctx context.Context, userID string, deviceID string, ip net.IP, ua string) {
	h.insertAudit(ctx, "session.verify.forced_logout", &userID, nil, ip, ua, map[string]any{
		"device_id": deviceID,
	})
}

// insertAudit is best-effort: failures are logged and never surfaced to the
// request path.
func (h *Handler) insertAudit(ctx context.Context, action string, userID *string, sessionID *string, ip net.IP, ua string, meta map[string]any) {
	if h == nil || h.pool == nil {
		return
	}

	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	var ipVal any
	if ip != nil {
		ipVal = ip.String()
	}

	var metaVal *string
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := h.pool.Exec(ctx, `
		INSERT INTO warden.audit_log (
			user_id, session_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, now(), $4, $5, $6::jsonb)
	`, userID, sessionID, action, ipVal, trimOrNil(ua), metaVal)
	if err != nil {
		h.log.Error("session.audit.insert.fail", "err", err, "action", action)
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
