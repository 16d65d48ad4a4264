package session

import "errors"

var (
	// ErrNotFound is returned when a referenced session row does not exist
	// for the scoping user. During eviction this is indistinguishable from
	// a cross-user id leak, so callers treat it as a failed operation.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidInput is returned when a required identifier is missing.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
