// Package doctor runs boxgate's self-diagnosis: config, credential,
// upstream reachability, home-dir permission, and schedule checks.
package doctor

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/basket/boxgate/internal/config"
	"github.com/basket/boxgate/internal/cron"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Healthy reports whether no check failed outright.
func (d Diagnosis) Healthy() bool {
	for _, r := range d.Results {
		if r.Status == "FAIL" {
			return false
		}
	}
	return true
}

// Run executes all diagnostic checks.
func Run(ctx context.Context, cfg *config.Config, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config) CheckResult{
		checkConfig,
		checkCredential,
		checkUpstream,
		checkPermissions,
		checkSchedule,
	}

	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg))
	}

	return d
}

func checkConfig(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "Configuration not loaded"}
	}
	if cfg.Upstream.BaseURL == "" {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "upstream.base_url is not set"}
	}
	return CheckResult{Name: "Config", Status: "PASS", Message: fmt.Sprintf("Loaded from %s", cfg.HomeDir)}
}

func checkCredential(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Credential", Status: "SKIP", Message: "Config missing"}
	}
	if cfg.Upstream.APIKey != "" {
		return CheckResult{Name: "Credential", Status: "PASS", Message: "Upstream API key configured"}
	}
	if os.Getenv("SANDBOX_API_KEY") != "" {
		return CheckResult{Name: "Credential", Status: "PASS", Message: "SANDBOX_API_KEY is set"}
	}
	return CheckResult{
		Name:    "Credential",
		Status:  "FAIL",
		Message: "No upstream API key",
		Detail:  "Set upstream.api_key in config.yaml or export SANDBOX_API_KEY",
	}
}

func checkUpstream(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil || cfg.Upstream.BaseURL == "" {
		return CheckResult{Name: "Upstream", Status: "SKIP", Message: "No upstream configured"}
	}

	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil || u.Hostname() == "" {
		return CheckResult{Name: "Upstream", Status: "FAIL", Message: fmt.Sprintf("Invalid base URL %q", cfg.Upstream.BaseURL)}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	addrs, err := net.DefaultResolver.LookupHost(lookupCtx, u.Hostname())
	if err != nil {
		return CheckResult{
			Name:    "Upstream",
			Status:  "FAIL",
			Message: fmt.Sprintf("DNS lookup for %s failed", u.Hostname()),
			Detail:  err.Error(),
		}
	}
	return CheckResult{
		Name:    "Upstream",
		Status:  "PASS",
		Message: fmt.Sprintf("Resolved %s in %s", u.Hostname(), time.Since(start).Round(time.Millisecond)),
		Detail:  fmt.Sprintf("%d address(es)", len(addrs)),
	}
}

func checkPermissions(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil || cfg.HomeDir == "" {
		return CheckResult{Name: "Permissions", Status: "SKIP", Message: "Config missing"}
	}

	testFile := filepath.Join(cfg.HomeDir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Permissions", Status: "FAIL", Message: fmt.Sprintf("Home dir unwritable: %v", err)}
	}
	os.Remove(testFile)

	return CheckResult{Name: "Permissions", Status: "PASS", Message: "Home directory writable"}
}

func checkSchedule(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil || cfg.Maintenance.HealthProbeCron == "" {
		return CheckResult{Name: "Schedule", Status: "SKIP", Message: "No maintenance schedule configured"}
	}
	next, err := cron.NextRunTime(cfg.Maintenance.HealthProbeCron, time.Now())
	if err != nil {
		return CheckResult{
			Name:    "Schedule",
			Status:  "FAIL",
			Message: fmt.Sprintf("Invalid cron expression %q", cfg.Maintenance.HealthProbeCron),
			Detail:  err.Error(),
		}
	}
	return CheckResult{
		Name:    "Schedule",
		Status:  "PASS",
		Message: fmt.Sprintf("Health probe next runs at %s", next.Format(time.RFC3339)),
	}
}
