package identity

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func TestNewJWTSource_RejectsShortSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewJWTSource([]byte("short"), ""); err == nil {
		t.Fatalf("expected error for short secret")
	}
}

func TestJWTSource_ValidToken(t *testing.T) {
	t.Parallel()

	src, err := NewJWTSource(testSecret, "idp")
	if err != nil {
		t.Fatalf("NewJWTSource: %v", err)
	}

	raw := signToken(t, testSecret, jwt.MapClaims{
		"sub": "auth0|user-1",
		"iss": "idp",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	r := httptest.NewRequest("POST", "/sessions/check", nil)
	r.Header.Set("Authorization", "Bearer "+raw)

	userID, err := src.UserID(r)
	if err != nil {
		t.Fatalf("UserID: %v", err)
	}
	if userID != "auth0|user-1" {
		t.Fatalf("unexpected subject: %q", userID)
	}
}

func TestJWTSource_RejectsMissingExpiredAndForeign(t *testing.T) {
	t.Parallel()

	src, err := NewJWTSource(testSecret, "idp")
	if err != nil {
		t.Fatalf("NewJWTSource: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "expired", token: signToken(t, testSecret, jwt.MapClaims{
			"sub": "u", "iss": "idp", "exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{name: "wrong issuer", token: signToken(t, testSecret, jwt.MapClaims{
			"sub": "u", "iss": "other", "exp": time.Now().Add(time.Hour).Unix(),
		})},
		{name: "wrong key", token: signToken(t, []byte("ffffffffffffffffffffffffffffffff"), jwt.MapClaims{
			"sub": "u", "iss": "idp", "exp": time.Now().Add(time.Hour).Unix(),
		})},
		{name: "empty subject", token: signToken(t, testSecret, jwt.MapClaims{
			"iss": "idp", "exp": time.Now().Add(time.Hour).Unix(),
		})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/sessions/verify", nil)
			if tc.token != "" {
				r.Header.Set("Authorization", "Bearer "+tc.token)
			}
			if _, err := src.UserID(r); err != ErrUnauthenticated {
				t.Fatalf("expected ErrUnauthenticated, got %v", err)
			}
		})
	}
}

func TestHeaderSource(t *testing.T) {
	t.Parallel()

	src := HeaderSource{}

	r := httptest.NewRequest("POST", "/sessions/check", nil)
	if _, err := src.UserID(r); err != ErrUnauthenticated {
		t.Fatalf("expected ErrUnauthenticated without header, got %v", err)
	}

	r.Header.Set("X-Warden-User", "user-2")
	userID, err := src.UserID(r)
	if err != nil {
		t.Fatalf("UserID: %v", err)
	}
	if userID != "user-2" {
		t.Fatalf("unexpected user id: %q", userID)
	}
}
