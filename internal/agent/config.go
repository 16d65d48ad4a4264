package agent

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrConfig reports invalid agent configuration.
var ErrConfig = errors.New("agent: invalid config")

const (
	defaultGrace            = 2 * time.Second
	defaultInterval         = 10 * time.Second
	defaultFailureThreshold = 3
	defaultMaxBackoff       = 60 * time.Second
)

// Config holds the polling knobs for the liveness monitor.
type Config struct {
	// Grace delays the first poll so it does not race the guard's own
	// admission call for the same device.
	Grace time.Duration

	// Interval is the steady-state polling period.
	Interval time.Duration

	// FailureThreshold is the number of consecutive transport failures
	// before the interval backs off.
	FailureThreshold int

	// MaxBackoff bounds the backed-off interval. Polling never stops.
	MaxBackoff time.Duration
}

// LoadConfigFromEnv reads monitor settings from the environment, applying
// defaults for anything unset.
//
//	WARDEN_POLL_GRACE     initial delay before the first poll (default 2s)
//	WARDEN_POLL_INTERVAL  steady-state polling period (default 10s)
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		Grace:            defaultGrace,
		Interval:         defaultInterval,
		FailureThreshold: defaultFailureThreshold,
		MaxBackoff:       defaultMaxBackoff,
	}

	if raw := strings.TrimSpace(os.Getenv("WARDEN_POLL_GRACE")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("%w: WARDEN_POLL_GRACE=%q", ErrConfig, raw)
		}
		cfg.Grace = d
	}
	if raw := strings.TrimSpace(os.Getenv("WARDEN_POLL_INTERVAL")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%w: WARDEN_POLL_INTERVAL=%q", ErrConfig, raw)
		}
		cfg.Interval = d
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = cfg.Interval
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.Grace < 0 {
		c.Grace = 0
	}
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.MaxBackoff < c.Interval {
		c.MaxBackoff = c.Interval
	}
	return c
}
