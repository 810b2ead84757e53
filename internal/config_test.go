package internal

import (
	"strings"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestCacheConfig_StrategyEnum(t *testing.T) {
	cfg := NewDefaultConfig()
	for _, s := range []string{EvictLRU, EvictLFU, EvictTTL} {
		cfg.Cache.Strategy = s
		if err := cfg.Cache.Validate(); err != nil {
			t.Errorf("strategy %q should pass: %v", s, err)
		}
	}
	cfg.Cache.Strategy = "fifo"
	if err := cfg.Cache.Validate(); err == nil {
		t.Error("unknown strategy should fail validation")
	}
}

func TestHTTPConfig_PortBounds(t *testing.T) {
	cfg := HTTPConfig{Port: 0}
	if err := cfg.Validate(); err == nil {
		t.Error("port 0 should fail validation")
	}
	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("port above 65535 should fail validation")
	}
	cfg.Port = 8080
	if cfg.Address() != ":8080" {
		t.Errorf("address = %q", cfg.Address())
	}
}

func TestTunerConfig_SkippedWhenDisabled(t *testing.T) {
	cfg := TunerConfig{Enabled: false}
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled tuner should skip validation: %v", err)
	}
	cfg = TunerConfig{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Error("enabled tuner with zero settings should fail")
	}
}

func TestCompletionConfig_MaxItemsBounds(t *testing.T) {
	cfg := CompletionConfig{MaxItems: 501}
	if err := cfg.Validate(); err == nil {
		t.Error("max items above 500 should fail validation")
	}
}
