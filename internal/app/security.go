package app

import "errors"

// ValidateSecurityConfig enforces the identity policy at startup.
//
// Fail-fast is intentional: silently falling back to the trusted-header dev
// source in a deployment that expects signed tokens would let anyone act as
// any user. The secret length is measured in bytes because it feeds HMAC-SHA256.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireAuthSecret {
		return nil
	}

	if cfg.AuthSecret == "" {
		return errors.New("security policy: WARDEN_REQUIRE_AUTH_SECRET=true but WARDEN_AUTH_SECRET is missing")
	}
	if len(cfg.AuthSecret) < 32 {
		return errors.New("security policy: WARDEN_REQUIRE_AUTH_SECRET=true but WARDEN_AUTH_SECRET is too short (min 32 bytes)")
	}
	return nil
}
