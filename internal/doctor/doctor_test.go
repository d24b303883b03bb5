package doctor

import (
	"context"
	"testing"

	"github.com/basket/boxgate/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		HomeDir: t.TempDir(),
		Upstream: config.UpstreamConfig{
			BaseURL: "http://localhost:3986/api",
			APIKey:  "test-key",
		},
	}
}

func TestRunCollectsAllChecks(t *testing.T) {
	d := Run(context.Background(), testConfig(t), "test")
	if len(d.Results) != 5 {
		t.Fatalf("expected 5 check results, got %d", len(d.Results))
	}
	if d.System.OS == "" || d.System.Go == "" {
		t.Fatalf("system info incomplete: %+v", d.System)
	}
}

func TestCheckConfig(t *testing.T) {
	if r := checkConfig(context.Background(), nil); r.Status != "FAIL" {
		t.Fatalf("nil config: status = %s, want FAIL", r.Status)
	}
	cfg := testConfig(t)
	cfg.Upstream.BaseURL = ""
	if r := checkConfig(context.Background(), cfg); r.Status != "FAIL" {
		t.Fatalf("missing base_url: status = %s, want FAIL", r.Status)
	}
	if r := checkConfig(context.Background(), testConfig(t)); r.Status != "PASS" {
		t.Fatalf("valid config: status = %s, want PASS", r.Status)
	}
}

func TestCheckCredential(t *testing.T) {
	t.Setenv("SANDBOX_API_KEY", "")

	cfg := testConfig(t)
	if r := checkCredential(context.Background(), cfg); r.Status != "PASS" {
		t.Fatalf("configured key: status = %s, want PASS", r.Status)
	}

	cfg.Upstream.APIKey = ""
	if r := checkCredential(context.Background(), cfg); r.Status != "FAIL" {
		t.Fatalf("no key anywhere: status = %s, want FAIL", r.Status)
	}

	t.Setenv("SANDBOX_API_KEY", "env-key")
	if r := checkCredential(context.Background(), cfg); r.Status != "PASS" {
		t.Fatalf("env key: status = %s, want PASS", r.Status)
	}
}

func TestCheckUpstream(t *testing.T) {
	cfg := testConfig(t)
	r := checkUpstream(context.Background(), cfg)
	// localhost always resolves.
	if r.Status != "PASS" {
		t.Fatalf("localhost: status = %s (%s), want PASS", r.Status, r.Message)
	}

	cfg.Upstream.BaseURL = "http://"
	if r := checkUpstream(context.Background(), cfg); r.Status != "FAIL" {
		t.Fatalf("hostless URL: status = %s, want FAIL", r.Status)
	}
}

func TestCheckPermissions(t *testing.T) {
	if r := checkPermissions(context.Background(), testConfig(t)); r.Status != "PASS" {
		t.Fatalf("temp dir: status = %s, want PASS", r.Status)
	}
	if r := checkPermissions(context.Background(), nil); r.Status != "SKIP" {
		t.Fatalf("nil config: status = %s, want SKIP", r.Status)
	}
}

func TestCheckSchedule(t *testing.T) {
	cfg := testConfig(t)
	if r := checkSchedule(context.Background(), cfg); r.Status != "SKIP" {
		t.Fatalf("no schedule: status = %s, want SKIP", r.Status)
	}

	cfg.Maintenance.HealthProbeCron = "*/15 * * * *"
	if r := checkSchedule(context.Background(), cfg); r.Status != "PASS" {
		t.Fatalf("valid expr: status = %s, want PASS", r.Status)
	}

	cfg.Maintenance.HealthProbeCron = "every so often"
	if r := checkSchedule(context.Background(), cfg); r.Status != "FAIL" {
		t.Fatalf("bad expr: status = %s, want FAIL", r.Status)
	}
}

func TestDiagnosisHealthy(t *testing.T) {
	d := Diagnosis{Results: []CheckResult{{Status: "PASS"}, {Status: "WARN"}}}
	if !d.Healthy() {
		t.Fatal("PASS+WARN should be healthy")
	}
	d.Results = append(d.Results, CheckResult{Status: "FAIL"})
	if d.Healthy() {
		t.Fatal("FAIL should make diagnosis unhealthy")
	}
}
