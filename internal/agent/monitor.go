package agent

import (
	"context"
	"log/slog"
	"time"
)

// Verifier is the slice of the session client the monitor needs.
type Verifier interface {
	Verify(ctx context.Context, deviceID string) (VerifyResult, error)
	Logout(ctx context.Context, deviceID string) error
}

// Monitor polls session liveness for a single device.
//
// A transport failure is never grounds for forced logout: the monitor backs
// off after FailureThreshold consecutive failures but keeps polling, because
// this poll is the only way a victim device learns it was evicted. Only an
// explicit valid:false payload is terminal.
type Monitor struct {
	log      *slog.Logger
	cfg      Config
	verifier Verifier
	deviceID string

	// OnForcedLogout hands off to the identity-provider logout flow after
	// the monitor has deactivated its own row. Optional.
	OnForcedLogout func()
}

// NewMonitor constructs a liveness monitor for the given device.
func NewMonitor(log *slog.Logger, cfg Config, verifier Verifier, deviceID string) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		log:      log,
		cfg:      cfg.withDefaults(),
		verifier: verifier,
		deviceID: deviceID,
	}
}

// Run polls until the context is cancelled or the session is reported
// invalid. It blocks; callers run it in a goroutine. The timer is released
// on every exit path.
func (m *Monitor) Run(ctx context.Context) {
	timer := time.NewTimer(m.cfg.Grace)
	defer timer.Stop()

	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		res, err := m.verifier.Verify(ctx, m.deviceID)

		// A result that raced teardown must not be acted on.
		if ctx.Err() != nil {
			return
		}

		switch {
		case err != nil:
			failures++
			m.log.Warn("monitor.verify.fail", "err", err, "device_id", m.deviceID, "consecutive", failures)
		case !res.Valid:
			m.log.Info("monitor.forced_logout", "device_id", m.deviceID)
			m.forceLogout(ctx)
			return
		default:
			failures = 0
		}

		timer.Reset(m.nextDelay(failures))
	}
}

// nextDelay doubles the interval once failures pass the threshold, bounded
// by MaxBackoff. It never returns a stop signal.
func (m *Monitor) nextDelay(failures int) time.Duration {
	d := m.cfg.Interval
	if failures < m.cfg.FailureThreshold {
		return d
	}
	for i := m.cfg.FailureThreshold; i <= failures; i++ {
		d *= 2
		if d >= m.cfg.MaxBackoff {
			return m.cfg.MaxBackoff
		}
	}
	return d
}

// forceLogout deactivates the device's own row and hands off to the identity
// provider. The logout call is idempotent server-side; a failure here is
// logged and not retried, since the row is already inactive.
func (m *Monitor) forceLogout(ctx context.Context) {
	if err := m.verifier.Logout(ctx, m.deviceID); err != nil {
		m.log.Warn("monitor.logout.fail", "err", err, "device_id", m.deviceID)
	}
	if m.OnForcedLogout != nil {
		m.OnForcedLogout()
	}
}
