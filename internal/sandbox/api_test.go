package sandbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/basket/boxgate/internal/upstream"
)

type recordedRequest struct {
	Method  string
	Path    string
	Escaped string
	Query   string
}

func apiWithRecorder(t *testing.T) (*API, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.Method = r.Method
		rec.Path = r.URL.Path
		rec.Escaped = r.URL.EscapedPath()
		rec.Query = r.URL.RawQuery
		io.WriteString(w, `{}`)
	}))
	t.Cleanup(ts.Close)
	return NewAPI(upstream.New(upstream.Config{BaseURL: ts.URL})), rec
}

func TestSandboxOperationPaths(t *testing.T) {
	api, rec := apiWithRecorder(t)
	ctx := context.Background()

	cases := []struct {
		name       string
		call       func() (json.RawMessage, error)
		wantMethod string
		wantPath   string
	}{
		{"create", func() (json.RawMessage, error) { return api.CreateSandbox(ctx, map[string]string{}) }, "POST", "/sandbox"},
		{"list", func() (json.RawMessage, error) { return api.ListSandboxes(ctx) }, "GET", "/sandbox"},
		{"get", func() (json.RawMessage, error) { return api.GetSandbox(ctx, "sbx-1") }, "GET", "/sandbox/sbx-1"},
		{"start", func() (json.RawMessage, error) { return api.StartSandbox(ctx, "sbx-1") }, "POST", "/sandbox/sbx-1/start"},
		{"stop", func() (json.RawMessage, error) { return api.StopSandbox(ctx, "sbx-1") }, "POST", "/sandbox/sbx-1/stop"},
		{"delete", func() (json.RawMessage, error) { return api.DeleteSandbox(ctx, "sbx-1") }, "DELETE", "/sandbox/sbx-1"},
		{"update", func() (json.RawMessage, error) { return api.UpdateSandbox(ctx, "sbx-1", map[string]any{}) }, "PATCH", "/sandbox/sbx-1"},
		{"sessions", func() (json.RawMessage, error) { return api.ListSessions(ctx, "sbx-1") }, "GET", "/sandbox/sbx-1/session"},
		{"exec", func() (json.RawMessage, error) {
			return api.ExecuteCommand(ctx, "sbx-1", "sess-1", map[string]string{"command": "ls"})
		}, "POST", "/sandbox/sbx-1/session/sess-1/exec"},
		{"command", func() (json.RawMessage, error) { return api.GetCommand(ctx, "sbx-1", "sess-1", "cmd-1") }, "GET", "/sandbox/sbx-1/session/sess-1/command/cmd-1"},
		{"logs", func() (json.RawMessage, error) { return api.CommandLogs(ctx, "sbx-1", "sess-1", "cmd-1") }, "GET", "/sandbox/sbx-1/session/sess-1/command/cmd-1/logs"},
		{"snapshots", func() (json.RawMessage, error) { return api.ListSnapshots(ctx) }, "GET", "/snapshot"},
		{"volumes", func() (json.RawMessage, error) { return api.ListVolumes(ctx) }, "GET", "/volume"},
		{"orgs", func() (json.RawMessage, error) { return api.ListOrganizations(ctx) }, "GET", "/organization"},
		{"health", func() (json.RawMessage, error) { return api.Health(ctx) }, "GET", "/health"},
	}

	for _, tc := range cases {
		if _, err := tc.call(); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if rec.Method != tc.wantMethod || rec.Path != tc.wantPath {
			t.Errorf("%s: %s %s, want %s %s", tc.name, rec.Method, rec.Path, tc.wantMethod, tc.wantPath)
		}
	}
}

func TestStreamCommandLogsFollows(t *testing.T) {
	api, rec := apiWithRecorder(t)

	body, err := api.StreamCommandLogs(context.Background(), "sbx-1", "sess-1", "cmd-1")
	if err != nil {
		t.Fatalf("StreamCommandLogs: %v", err)
	}
	defer body.Close()

	if rec.Path != "/sandbox/sbx-1/session/sess-1/command/cmd-1/logs" {
		t.Errorf("path = %q", rec.Path)
	}
	if rec.Query != "follow=true" {
		t.Errorf("query = %q, want follow=true", rec.Query)
	}
}

func TestPathEscaping(t *testing.T) {
	api, rec := apiWithRecorder(t)

	if _, err := api.GetSandbox(context.Background(), "sbx/../etc"); err != nil {
		t.Fatalf("GetSandbox: %v", err)
	}
	if rec.Escaped != "/sandbox/sbx%2F..%2Fetc" {
		t.Errorf("sandbox id was not path-escaped: %q", rec.Escaped)
	}
}
