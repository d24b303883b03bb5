package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetSendsAuthHeaders(t *testing.T) {
	var gotAuth, gotOrg, gotAccept string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotOrg = r.Header.Get("X-Organization-ID")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"sbx-1"}`)
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL, APIKey: "sk-test", OrganizationID: "org-1"})
	raw, err := c.Get(context.Background(), "/sandbox/sbx-1", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotOrg != "org-1" {
		t.Errorf("X-Organization-ID = %q", gotOrg)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q", gotAccept)
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.ID != "sbx-1" {
		t.Errorf("id = %q", payload.ID)
	}
}

func TestPostEncodesBody(t *testing.T) {
	var gotMethod, gotCT string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"new"}`)
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL})
	_, err := c.Post(context.Background(), "/sandbox", &RequestOptions{
		Body: map[string]string{"snapshot": "ubuntu-22"},
	})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q", gotMethod)
	}
	if gotCT != "application/json" {
		t.Errorf("Content-Type = %q", gotCT)
	}
	if gotBody["snapshot"] != "ubuntu-22" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestQueryParams(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		io.WriteString(w, `[]`)
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL})
	opts := &RequestOptions{Params: map[string][]string{"follow": {"true"}}}
	if _, err := c.Get(context.Background(), "/logs", opts); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotQuery != "follow=true" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestAPIErrorOnNon2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"sandbox not found"}`, http.StatusNotFound)
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL})
	_, err := c.Get(context.Background(), "/sandbox/missing", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("status = %d", apiErr.Status)
	}
}

func TestNetworkErrorWrapped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // refuse connections

	c := New(Config{BaseURL: ts.URL})
	_, err := c.Get(context.Background(), "/sandbox", nil)
	if err == nil {
		t.Fatal("expected network error")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Fatalf("network failure must not be an APIError: %v", err)
	}
}

func TestEmptyResponseBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL})
	raw, err := c.Delete(context.Background(), "/sandbox/sbx-1", nil)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if string(raw) != "null" {
		t.Errorf("raw = %q, want null", raw)
	}
}

func TestStreamDeliversChunks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, chunk := range []string{"line one\n", "line two\n"} {
			io.WriteString(w, chunk)
			flusher.Flush()
			time.Sleep(10 * time.Millisecond)
		}
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL, Timeout: 50 * time.Millisecond})
	body, err := c.Stream(context.Background(), "/logs", nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer body.Close()

	// A stream outliving the request timeout must still read fully: the
	// streaming client carries no client-level timeout.
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(data) != "line one\nline two\n" {
		t.Errorf("stream = %q", data)
	}
}

func TestStreamErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL})
	_, err := c.Stream(context.Background(), "/logs", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Errorf("status = %d", apiErr.Status)
	}
}

func TestStreamCancelUnblocksRead(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "first\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := New(Config{BaseURL: ts.URL})
	body, err := c.Stream(ctx, "/logs", nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer body.Close()

	buf := make([]byte, 64)
	if _, err := body.Read(buf); err != nil {
		t.Fatalf("first read: %v", err)
	}

	cancel()
	done := make(chan error, 1)
	go func() {
		_, err := body.Read(buf)
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Error("expected read error after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read did not unblock after context cancel")
	}
}
