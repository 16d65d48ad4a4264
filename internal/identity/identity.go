// Package identity resolves the logged-in user on each request.
//
// Issuing and validating the user's identity session is delegated to an
// external identity provider; warden only needs the stable subject identifier
// carried by the provider's bearer token. The provider-facing contract is the
// single-method SessionSource so tests and dev mode can substitute their own.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when a request carries no valid identity
// session. Fatal to the request; the caller must re-authenticate.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrConfig is returned for invalid identity configuration.
var ErrConfig = errors.New("invalid identity config")

// SessionSource extracts the identity-provider subject from a request.
type SessionSource interface {
	// UserID returns the subject of the request's identity session, or
	// ErrUnauthenticated when there is none.
	UserID(r *http.Request) (string, error)
}

// JWTSource validates bearer tokens minted by the external identity provider
// and extracts their subject. Tokens are HS256-signed with a shared secret.
type JWTSource struct {
	secret []byte
	issuer string
}

// NewJWTSource constructs a JWTSource. The secret must be at least 32 bytes.
// Issuer is optional; when set, tokens from other issuers are rejected.
func NewJWTSource(secret []byte, issuer string) (*JWTSource, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("%w: identity secret must be at least 32 bytes", ErrConfig)
	}
	return &JWTSource{secret: secret, issuer: issuer}, nil
}

// UserID validates the request's bearer token and returns its subject.
func (s *JWTSource) UserID(r *http.Request) (string, error) {
	raw := bearerToken(r)
	if raw == "" {
		return "", ErrUnauthenticated
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return "", ErrUnauthenticated
	}

	sub, err := tok.Claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", ErrUnauthenticated
	}
	return sub, nil
}

// HeaderSource trusts a plain user-id header. Dev-only: it must never be
// enabled where the header can be set by untrusted clients.
type HeaderSource struct {
	Header string
}

// UserID returns the configured header's value.
func (s HeaderSource) UserID(r *http.Request) (string, error) {
	name := s.Header
	if name == "" {
		name = "X-Warden-User"
	}
	v := strings.TrimSpace(r.Header.Get(name))
	if v == "" {
		return "", ErrUnauthenticated
	}
	return v, nil
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
