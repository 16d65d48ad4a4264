package session

import (
	"errors"
	"testing"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("WARDEN_MAX_DEVICES", "")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.MaxDevices != 3 {
		t.Fatalf("default MaxDevices = %d, want 3", cfg.MaxDevices)
	}
}

func TestLoadConfigFromEnv_Override(t *testing.T) {
	t.Setenv("WARDEN_MAX_DEVICES", "5")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.MaxDevices != 5 {
		t.Fatalf("MaxDevices = %d, want 5", cfg.MaxDevices)
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	for _, v := range []string{"0", "-1", "101", "three"} {
		t.Setenv("WARDEN_MAX_DEVICES", v)

		if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
			t.Fatalf("WARDEN_MAX_DEVICES=%q: expected ErrConfig, got %v", v, err)
		}
	}
}
