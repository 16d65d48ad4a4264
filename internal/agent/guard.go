package agent

import (
	"context"
	"log/slog"
)

// GuardState is the admission state machine's current position.
type GuardState string

const (
	StateChecking          GuardState = "checking"
	StateAdmitted          GuardState = "admitted"
	StateSelectionRequired GuardState = "selection_required"
	StateEvicting          GuardState = "evicting"
	StateReady             GuardState = "ready"
)

// Admitter is the slice of the session client the guard needs.
type Admitter interface {
	Check(ctx context.Context, deviceID, deviceName, userAgent string) (CheckResult, error)
	ForceLogout(ctx context.Context, sessionIDToLogout, newDeviceID, deviceName, userAgent string) (string, error)
}

// Selector resolves which active session to evict when the device limit is
// reached. Returning ok=false means the user declined, which ends the login
// attempt on this device.
type Selector interface {
	Pick(ctx context.Context, candidates []ActiveSession) (sessionID string, ok bool, err error)
}

// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(ctx context.Context, candidates []ActiveSession) (string, bool, error)

func (f SelectorFunc) Pick(ctx context.Context, candidates []ActiveSession) (string, bool, error) {
	return f(ctx, candidates)
}

// GuardResult is the final outcome of one admission pass.
type GuardResult struct {
	State     GuardState
	SessionID string

	// Degraded marks a fail-open outcome: a store or transport error kept
	// the admission check from completing, and the device proceeds anyway
	// rather than locking the user out on a transient outage.
	Degraded bool

	// Declined marks a user-cancelled selection; the caller should route
	// to the identity-provider logout flow.
	Declined bool
}

// Guard drives admission for one device: check, optionally evict, settle.
type Guard struct {
	log      *slog.Logger
	admitter Admitter
	selector Selector

	deviceID   string
	deviceName string
	userAgent  string

	state GuardState
}

// NewGuard constructs a session guard for the given device identity.
func NewGuard(log *slog.Logger, admitter Admitter, selector Selector, deviceID, deviceName, userAgent string) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		log:        log,
		admitter:   admitter,
		selector:   selector,
		deviceID:   deviceID,
		deviceName: deviceName,
		userAgent:  userAgent,
		state:      StateChecking,
	}
}

// State reports the guard's current position in the state machine.
func (g *Guard) State() GuardState { return g.state }

// Admit runs the admission pass to completion. Every path lands on Ready:
// admitted, evict-then-admitted, declined, or degraded on store errors.
func (g *Guard) Admit(ctx context.Context) (GuardResult, error) {
	g.state = StateChecking

	res, err := g.admitter.Check(ctx, g.deviceID, g.deviceName, g.userAgent)
	if err != nil {
		// Fail open: a transient store outage must not lock out a
		// legitimate user. The next liveness poll re-checks.
		g.log.Warn("guard.check.fail", "err", err, "device_id", g.deviceID)
		g.state = StateReady
		return GuardResult{State: StateReady, Degraded: true}, nil
	}

	if res.Allowed {
		g.state = StateAdmitted
		g.log.Info("guard.admitted", "device_id", g.deviceID, "session_id", res.SessionID)
		g.state = StateReady
		return GuardResult{State: StateReady, SessionID: res.SessionID}, nil
	}

	g.state = StateSelectionRequired
	if g.selector == nil {
		g.log.Info("guard.selection.declined", "device_id", g.deviceID)
		g.state = StateReady
		return GuardResult{State: StateReady, Declined: true}, nil
	}

	victim, ok, err := g.selector.Pick(ctx, res.ActiveSessions)
	if err != nil {
		g.state = StateReady
		return GuardResult{State: StateReady}, err
	}
	if !ok {
		g.log.Info("guard.selection.declined", "device_id", g.deviceID)
		g.state = StateReady
		return GuardResult{State: StateReady, Declined: true}, nil
	}

	g.state = StateEvicting
	sessionID, err := g.admitter.ForceLogout(ctx, victim, g.deviceID, g.deviceName, g.userAgent)
	if err != nil {
		// Eviction is two-step and non-transactional: a failure here may
		// leave the user under the limit but this device unadmitted.
		// Re-running Admit retries admission safely.
		g.log.Warn("guard.evict.fail", "err", err, "device_id", g.deviceID, "victim", victim)
		g.state = StateReady
		return GuardResult{State: StateReady, Degraded: true}, nil
	}

	g.log.Info("guard.evicted", "device_id", g.deviceID, "victim", victim, "session_id", sessionID)
	g.state = StateReady
	return GuardResult{State: StateReady, SessionID: sessionID}, nil
}
