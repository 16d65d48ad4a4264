package agent

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeAdmitter struct {
	checkRes CheckResult
	checkErr error

	evictSessionID string
	evictErr       error

	evictedVictim string
	checkCalls    int
}

func (f *fakeAdmitter) Check(ctx context.Context, deviceID, deviceName, userAgent string) (CheckResult, error) {
	f.checkCalls++
	return f.checkRes, f.checkErr
}

func (f *fakeAdmitter) ForceLogout(ctx context.Context, sessionIDToLogout, newDeviceID, deviceName, userAgent string) (string, error) {
	f.evictedVictim = sessionIDToLogout
	return f.evictSessionID, f.evictErr
}

func pickFirst(ctx context.Context, candidates []ActiveSession) (string, bool, error) {
	if len(candidates) == 0 {
		return "", false, nil
	}
	return candidates[0].ID, true, nil
}

func declineAll(ctx context.Context, candidates []ActiveSession) (string, bool, error) {
	return "", false, nil
}

func TestGuardAdmitted(t *testing.T) {
	fa := &fakeAdmitter{checkRes: CheckResult{Allowed: true, SessionID: "sess-1"}}
	g := NewGuard(nil, fa, SelectorFunc(pickFirst), "dev-a", "Chrome on Windows", "ua")

	res, err := g.Admit(context.Background())
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if res.State != StateReady || res.SessionID != "sess-1" || res.Degraded || res.Declined {
		t.Fatalf("unexpected result %+v", res)
	}
	if g.State() != StateReady {
		t.Fatalf("guard left in state %q", g.State())
	}
}

func TestGuardEvictsOnSelection(t *testing.T) {
	fa := &fakeAdmitter{
		checkRes: CheckResult{
			NeedsDeviceSelection: true,
			ActiveSessions: []ActiveSession{
				{ID: "victim-1", DeviceName: "Safari on iOS", LastActivity: time.Now()},
				{ID: "victim-2", DeviceName: "Firefox on Linux"},
			},
		},
		evictSessionID: "sess-new",
	}
	g := NewGuard(nil, fa, SelectorFunc(pickFirst), "dev-a", "Chrome on Windows", "ua")

	res, err := g.Admit(context.Background())
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if res.SessionID != "sess-new" {
		t.Fatalf("expected new session after eviction, got %+v", res)
	}
	if fa.evictedVictim != "victim-1" {
		t.Fatalf("evicted %q, want victim-1", fa.evictedVictim)
	}
}

func TestGuardDeclinedSelection(t *testing.T) {
	fa := &fakeAdmitter{
		checkRes: CheckResult{
			NeedsDeviceSelection: true,
			ActiveSessions:       []ActiveSession{{ID: "victim-1"}},
		},
	}
	g := NewGuard(nil, fa, SelectorFunc(declineAll), "dev-a", "", "")

	res, err := g.Admit(context.Background())
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !res.Declined {
		t.Fatalf("expected declined result, got %+v", res)
	}
	if fa.evictedVictim != "" {
		t.Fatalf("eviction ran after decline: %q", fa.evictedVictim)
	}
}

func TestGuardFailsOpenOnCheckError(t *testing.T) {
	fa := &fakeAdmitter{checkErr: errors.New("store down")}
	g := NewGuard(nil, fa, SelectorFunc(pickFirst), "dev-a", "", "")

	res, err := g.Admit(context.Background())
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if res.State != StateReady || !res.Degraded {
		t.Fatalf("expected degraded ready, got %+v", res)
	}
}

func TestGuardDegradedOnEvictError(t *testing.T) {
	fa := &fakeAdmitter{
		checkRes: CheckResult{
			NeedsDeviceSelection: true,
			ActiveSessions:       []ActiveSession{{ID: "victim-1"}},
		},
		evictErr: errors.New("store down"),
	}
	g := NewGuard(nil, fa, SelectorFunc(pickFirst), "dev-a", "", "")

	res, err := g.Admit(context.Background())
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !res.Degraded || res.SessionID != "" {
		t.Fatalf("expected degraded result without session, got %+v", res)
	}
}

func TestGuardSelectorError(t *testing.T) {
	fa := &fakeAdmitter{
		checkRes: CheckResult{
			NeedsDeviceSelection: true,
			ActiveSessions:       []ActiveSession{{ID: "victim-1"}},
		},
	}
	wantErr := errors.New("prompt closed")
	g := NewGuard(nil, fa, SelectorFunc(func(ctx context.Context, _ []ActiveSession) (string, bool, error) {
		return "", false, wantErr
	}), "dev-a", "", "")

	if _, err := g.Admit(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected selector error, got %v", err)
	}
}
