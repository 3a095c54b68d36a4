package config

import (
	"testing"
	"time"
)

func TestLoadApp_Defaults(t *testing.T) {
	cfg, err := LoadApp()
	if err != nil {
		t.Fatalf("LoadApp() error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Port)
	}
	if cfg.CredentialTTL != 30*time.Minute {
		t.Errorf("default credential TTL = %s, want 30m", cfg.CredentialTTL)
	}
	if cfg.RateLimitMessages != 20 || cfg.RateLimitWindow != time.Second {
		t.Errorf("unexpected rate limit defaults: %d per %s", cfg.RateLimitMessages, cfg.RateLimitWindow)
	}
}

func TestLoadApp_Overrides(t *testing.T) {
	t.Setenv("PORT", "9191")
	t.Setenv("CREDENTIAL_TTL", "5m")
	t.Setenv("ROOM_GRACE_PERIOD", "30s")

	cfg, err := LoadApp()
	if err != nil {
		t.Fatalf("LoadApp() error: %v", err)
	}
	if cfg.Port != 9191 {
		t.Errorf("port = %d, want 9191", cfg.Port)
	}
	if cfg.CredentialTTL != 5*time.Minute {
		t.Errorf("credential TTL = %s, want 5m", cfg.CredentialTTL)
	}
	if cfg.RoomGracePeriod != 30*time.Second {
		t.Errorf("room grace period = %s, want 30s", cfg.RoomGracePeriod)
	}
}

func TestLoadApp_RejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "70000")

	if _, err := LoadApp(); err == nil {
		t.Error("expected validation error for out-of-range port")
	}
}

func TestAppValidate(t *testing.T) {
	base := App{
		Port:              8080,
		CredentialTTL:     time.Minute,
		RateLimitMessages: 10,
		RateLimitWindow:   time.Second,
	}
	if err := base.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	bad := base
	bad.CredentialTTL = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero credential TTL should be rejected")
	}

	bad = base
	bad.RateLimitMessages = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero rate limit should be rejected")
	}
}
