package session

import (
	"os"
	"strconv"
)

// Config defines runtime configuration for the admission protocol.
//
// It is intentionally explicit and environment-driven so that deployments can
// tune the device limit without code changes.
type Config struct {
	// MaxDevices is the maximum number of concurrently active device
	// sessions per user.
	MaxDevices int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxDevices: 3,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional:
//   - WARDEN_MAX_DEVICES (positive integer, at most 100)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("WARDEN_MAX_DEVICES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return Config{}, ErrConfig
		}
		cfg.MaxDevices = n
	}

	return cfg, nil
}
