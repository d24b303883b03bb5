package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// UpstreamConfig holds the connection settings for the remote sandbox API.
// Base URL and API key are immutable after startup; live reload never
// touches them.
type UpstreamConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	OrganizationID string `yaml:"organization_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// APIKeyEntry names one accepted gateway API key.
type APIKeyEntry struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// AuthConfig controls gateway-side authentication.
type AuthConfig struct {
	Enabled bool          `yaml:"enabled"`
	Keys    []APIKeyEntry `yaml:"keys"`
}

// CORSConfig controls cross-origin access to the gateway.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// RelayConfig holds the poll periods for the event relay drivers.
type RelayConfig struct {
	StatusIntervalSeconds   int `yaml:"status_interval_seconds"`
	SessionsIntervalSeconds int `yaml:"sessions_interval_seconds"`
}

// OtelConfig mirrors internal/otel.Config for YAML decoding.
type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// MaintenanceConfig holds cron expressions for background jobs.
type MaintenanceConfig struct {
	// HealthProbeCron schedules the periodic upstream health probe.
	// Standard 5-field cron expression; empty disables the probe.
	HealthProbeCron string `yaml:"health_probe_cron"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	BindAddr string `yaml:"bind_addr"`
	LogLevel string `yaml:"log_level"`

	// AllowOrigins controls which Origin headers are accepted for browser
	// WebSocket connections. Empty means local-only.
	AllowOrigins []string `yaml:"allow_origins"`

	Upstream    UpstreamConfig    `yaml:"upstream"`
	Auth        AuthConfig        `yaml:"auth"`
	CORS        CORSConfig        `yaml:"cors"`
	Relay       RelayConfig       `yaml:"relay"`
	Otel        OtelConfig        `yaml:"otel"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// StatusInterval returns the status-poll period as a duration.
func (c Config) StatusInterval() time.Duration {
	return time.Duration(c.Relay.StatusIntervalSeconds) * time.Second
}

// SessionsInterval returns the sessions-poll period as a duration.
func (c Config) SessionsInterval() time.Duration {
	return time.Duration(c.Relay.SessionsIntervalSeconds) * time.Second
}

// UpstreamTimeout returns the per-request upstream timeout as a duration.
func (c Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// Fingerprint returns a stable hash of the active config, exposed in
// /healthz so operators can tell which settings a running daemon carries.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "bind=%s|log=%s|upstream=%s|org=%s|status=%d|sessions=%d|origins=%v",
		c.BindAddr, c.LogLevel, c.Upstream.BaseURL, c.Upstream.OrganizationID,
		c.Relay.StatusIntervalSeconds, c.Relay.SessionsIntervalSeconds, c.AllowOrigins)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

func defaultConfig() Config {
	return Config{
		BindAddr: "127.0.0.1:18890",
		LogLevel: "info",
		Upstream: UpstreamConfig{
			TimeoutSeconds: 30,
		},
		Relay: RelayConfig{
			StatusIntervalSeconds:   5,
			SessionsIntervalSeconds: 10,
		},
		Maintenance: MaintenanceConfig{
			HealthProbeCron: "*/5 * * * *",
		},
	}
}

func HomeDir() string {
	if override := os.Getenv("BOXGATE_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".boxgate")
}

func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create boxgate home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:18890"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Upstream.TimeoutSeconds <= 0 {
		cfg.Upstream.TimeoutSeconds = 30
	}
	if cfg.Relay.StatusIntervalSeconds <= 0 {
		cfg.Relay.StatusIntervalSeconds = 5
	}
	if cfg.Relay.SessionsIntervalSeconds <= 0 {
		cfg.Relay.SessionsIntervalSeconds = 10
	}
	cfg.Upstream.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Upstream.BaseURL), "/")
}

func validate(cfg *Config) error {
	if cfg.Upstream.BaseURL != "" &&
		!strings.HasPrefix(cfg.Upstream.BaseURL, "http://") &&
		!strings.HasPrefix(cfg.Upstream.BaseURL, "https://") {
		return fmt.Errorf("upstream.base_url must be an http(s) URL, got %q", cfg.Upstream.BaseURL)
	}
	if cfg.Auth.Enabled && len(cfg.Auth.Keys) == 0 {
		return fmt.Errorf("auth.enabled is set but auth.keys is empty")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("BOXGATE_BIND_ADDR"); raw != "" {
		cfg.BindAddr = raw
	}
	if raw := os.Getenv("BOXGATE_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("SANDBOX_API_URL"); raw != "" {
		cfg.Upstream.BaseURL = strings.TrimRight(strings.TrimSpace(raw), "/")
	}
	if raw := os.Getenv("SANDBOX_API_KEY"); raw != "" {
		cfg.Upstream.APIKey = raw
	}
	if raw := os.Getenv("SANDBOX_ORG_ID"); raw != "" {
		cfg.Upstream.OrganizationID = raw
	}
	if raw := os.Getenv("BOXGATE_STATUS_INTERVAL_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Relay.StatusIntervalSeconds = v
		}
	}
	if raw := os.Getenv("BOXGATE_SESSIONS_INTERVAL_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Relay.SessionsIntervalSeconds = v
		}
	}
}
