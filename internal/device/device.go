// Package device supplies the agent-side device identity: a stable opaque
// fingerprint plus a human-readable descriptor derived from the user agent.
//
// The fingerprint contract is stability, nothing more: the same process (and,
// via WARDEN_DEVICE_ID, the same installation) always reports the same id.
// How the id was originally produced is opaque to the rest of the system.
package device

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strings"
	"sync"
)

// fingerprint is process-scoped, lazily-initialized state with
// single-initialization semantics: every caller in the process observes the
// same id, however many goroutines race the first call.
var fingerprint = sync.OnceValues(func() (string, error) {
	if v := strings.TrimSpace(os.Getenv("WARDEN_DEVICE_ID")); v != "" {
		return v, nil
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
})

// ID returns the stable device fingerprint for this process.
func ID() (string, error) {
	return fingerprint()
}

// DescribeUserAgent derives a "Browser on OS" descriptor from a raw user
// agent string. Unknown agents degrade to "Unknown Browser on Unknown OS".
func DescribeUserAgent(ua string) string {
	browser := "Unknown Browser"
	switch {
	case strings.Contains(ua, "Firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "Edg"):
		browser = "Edge"
	case strings.Contains(ua, "Opera"), strings.Contains(ua, "OPR"):
		browser = "Opera"
	case strings.Contains(ua, "Chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "Safari"):
		browser = "Safari"
	}

	os := "Unknown OS"
	switch {
	case strings.Contains(ua, "Windows"):
		os = "Windows"
	case strings.Contains(ua, "Android"):
		os = "Android"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"), strings.Contains(ua, "iOS"):
		os = "iOS"
	case strings.Contains(ua, "Mac"):
		os = "macOS"
	case strings.Contains(ua, "Linux"):
		os = "Linux"
	}

	return browser + " on " + os
}
