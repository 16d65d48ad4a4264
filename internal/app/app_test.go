package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newMemoryApp(t *testing.T) *App {
	t.Helper()

	t.Setenv("WARDEN_DATABASE_URL", "")
	t.Setenv("WARDEN_AUTH_SECRET", "")
	t.Setenv("WARDEN_MAX_DEVICES", "")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(LoadConfig(), log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func newAppServer(t *testing.T, a *App) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.sessions, a.ws, a.metrics)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestAppHealthAndReadiness(t *testing.T) {
	a := newMemoryApp(t)
	ts := newAppServer(t, a)

	for _, path := range []string{"/healthz", "/readyz"} {
		res, err := ts.Client().Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d", path, res.StatusCode)
		}
	}
}

func TestAppReadinessRequiresDB(t *testing.T) {
	t.Setenv("WARDEN_READINESS_REQUIRE_DB", "true")
	a := newMemoryApp(t)
	ts := newAppServer(t, a)

	res, err := ts.Client().Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without DB, got %d", res.StatusCode)
	}
}

func TestAppServesMetrics(t *testing.T) {
	a := newMemoryApp(t)
	ts := newAppServer(t, a)

	res, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics: status %d", res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("metrics output missing runtime collectors")
	}
}

func TestAppMountsSessionRoutes(t *testing.T) {
	a := newMemoryApp(t)
	ts := newAppServer(t, a)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/sessions/check", strings.NewReader(`{"deviceId":"dev-a"}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Warden-User", "user-1")

	res, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("POST /sessions/check: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		t.Fatalf("POST /sessions/check: status %d: %s", res.StatusCode, body)
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "policy off", cfg: Config{}, wantErr: false},
		{name: "policy on, missing secret", cfg: Config{RequireAuthSecret: true}, wantErr: true},
		{name: "policy on, short secret", cfg: Config{RequireAuthSecret: true, AuthSecret: "short"}, wantErr: true},
		{name: "policy on, valid secret", cfg: Config{RequireAuthSecret: true, AuthSecret: strings.Repeat("s", 32)}, wantErr: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateSecurityConfig(tc.cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateSecurityConfig: err=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}
