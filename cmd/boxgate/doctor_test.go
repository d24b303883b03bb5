package main

import (
	"context"
	"testing"
)

func TestRunDoctorCommand_JSON(t *testing.T) {
	setTestConfig(t, "127.0.0.1:18890")
	t.Setenv("SANDBOX_API_URL", "http://localhost:3986/api")
	t.Setenv("SANDBOX_API_KEY", "test-key")

	code := runDoctorCommand(context.Background(), []string{"-json"})
	if code != 0 {
		t.Fatalf("got exit code %d, want 0", code)
	}
}

func TestRunDoctorCommand_FailsWithoutCredential(t *testing.T) {
	setTestConfig(t, "127.0.0.1:18890")
	t.Setenv("SANDBOX_API_URL", "http://localhost:3986/api")
	t.Setenv("SANDBOX_API_KEY", "")

	code := runDoctorCommand(context.Background(), nil)
	if code != 1 {
		t.Fatalf("got exit code %d, want 1 when no credential is configured", code)
	}
}
