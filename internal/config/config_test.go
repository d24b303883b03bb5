package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func loadWithHome(t *testing.T, yaml string) (Config, error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("BOXGATE_HOME", home)
	if yaml != "" {
		if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yaml), 0o644); err != nil {
			t.Fatalf("write config.yaml: %v", err)
		}
	}
	return Load()
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWithHome(t, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddr != "127.0.0.1:18890" {
		t.Errorf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if got := cfg.StatusInterval(); got != 5*time.Second {
		t.Errorf("StatusInterval = %v, want 5s", got)
	}
	if got := cfg.SessionsInterval(); got != 10*time.Second {
		t.Errorf("SessionsInterval = %v, want 10s", got)
	}
	if got := cfg.UpstreamTimeout(); got != 30*time.Second {
		t.Errorf("UpstreamTimeout = %v, want 30s", got)
	}
	if cfg.Maintenance.HealthProbeCron == "" {
		t.Error("HealthProbeCron default is empty")
	}
}

func TestLoadYAML(t *testing.T) {
	cfg, err := loadWithHome(t, `
bind_addr: "0.0.0.0:9000"
log_level: debug
upstream:
  base_url: https://sandbox.example.com/api/
  api_key: sk-test
  organization_id: org-1
relay:
  status_interval_seconds: 2
  sessions_interval_seconds: 3
`)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddr != "0.0.0.0:9000" {
		t.Errorf("BindAddr = %q", cfg.BindAddr)
	}
	// Trailing slash is trimmed so path joins stay predictable.
	if cfg.Upstream.BaseURL != "https://sandbox.example.com/api" {
		t.Errorf("BaseURL = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.Upstream.APIKey)
	}
	if cfg.StatusInterval() != 2*time.Second || cfg.SessionsInterval() != 3*time.Second {
		t.Errorf("intervals = %v/%v", cfg.StatusInterval(), cfg.SessionsInterval())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SANDBOX_API_URL", "http://localhost:3986/")
	t.Setenv("SANDBOX_API_KEY", "env-key")
	t.Setenv("BOXGATE_BIND_ADDR", "127.0.0.1:7777")
	t.Setenv("BOXGATE_STATUS_INTERVAL_SECONDS", "1")

	cfg, err := loadWithHome(t, `
upstream:
  api_key: file-key
`)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Upstream.BaseURL != "http://localhost:3986" {
		t.Errorf("BaseURL = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env override", cfg.Upstream.APIKey)
	}
	if cfg.BindAddr != "127.0.0.1:7777" {
		t.Errorf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.Relay.StatusIntervalSeconds != 1 {
		t.Errorf("StatusIntervalSeconds = %d", cfg.Relay.StatusIntervalSeconds)
	}
}

func TestValidateBadBaseURL(t *testing.T) {
	_, err := loadWithHome(t, `
upstream:
  base_url: sandbox.example.com
`)
	if err == nil || !strings.Contains(err.Error(), "base_url") {
		t.Fatalf("err = %v, want base_url validation error", err)
	}
}

func TestValidateAuthWithoutKeys(t *testing.T) {
	_, err := loadWithHome(t, `
auth:
  enabled: true
`)
	if err == nil || !strings.Contains(err.Error(), "auth.keys") {
		t.Fatalf("err = %v, want auth.keys validation error", err)
	}
}

func TestNormalizeZeroIntervals(t *testing.T) {
	cfg, err := loadWithHome(t, `
relay:
  status_interval_seconds: -1
  sessions_interval_seconds: 0
`)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Relay.StatusIntervalSeconds != 5 || cfg.Relay.SessionsIntervalSeconds != 10 {
		t.Errorf("intervals = %d/%d, want defaults restored",
			cfg.Relay.StatusIntervalSeconds, cfg.Relay.SessionsIntervalSeconds)
	}
}

func TestFingerprintStable(t *testing.T) {
	cfg, err := loadWithHome(t, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a := cfg.Fingerprint()
	b := cfg.Fingerprint()
	if a != b {
		t.Errorf("fingerprint not stable: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "cfg-") {
		t.Errorf("fingerprint = %q, want cfg- prefix", a)
	}

	cfg.BindAddr = "10.0.0.1:80"
	if cfg.Fingerprint() == a {
		t.Error("fingerprint unchanged after config change")
	}
}
