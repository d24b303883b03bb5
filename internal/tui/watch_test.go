package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestDecodeSSE(t *testing.T) {
	stream := "event: connected\n" +
		`data: {"sandbox_id":"sbx-1","kind":"sandbox-status"}` + "\n\n" +
		"event: sandbox-status\n" +
		`data: {"sandbox_id":"sbx-1"}` + "\n\n"

	ch := make(chan Event, 4)
	decodeSSE(strings.NewReader(stream), ch)
	close(ch)

	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Name != "connected" || events[1].Name != "sandbox-status" {
		t.Fatalf("unexpected names: %q, %q", events[0].Name, events[1].Name)
	}
	var data map[string]string
	if err := json.Unmarshal(events[0].Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["sandbox_id"] != "sbx-1" {
		t.Fatalf("data = %+v", data)
	}
}

func TestModelAppendsEvents(t *testing.T) {
	events := make(chan Event)
	m := model{cfg: StreamConfig{SandboxID: "sbx-1"}, events: events}

	next, _ := m.Update(eventMsg(Event{
		Name: "connected",
		Data: json.RawMessage(`{"sandbox_id":"sbx-1"}`),
		At:   time.Now(),
	}))
	m = next.(model)
	next, _ = m.Update(eventMsg(Event{
		Name: "log",
		Data: json.RawMessage(`{"text":"hello from sandbox\n"}`),
		At:   time.Now(),
	}))
	m = next.(model)

	view := m.View()
	for _, want := range []string{"boxgate watch", "sbx-1", "connected", "hello from sandbox"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModelStreamClosed(t *testing.T) {
	m := model{cfg: StreamConfig{SandboxID: "sbx-1"}}
	next, _ := m.Update(streamClosedMsg{})
	m = next.(model)
	if !strings.Contains(m.View(), "stream closed") {
		t.Fatalf("view should announce closed stream:\n%s", m.View())
	}
}

func TestModelQuitKeys(t *testing.T) {
	m := model{}
	for _, key := range []string{"q", "ctrl+c"} {
		var msg tea.KeyMsg
		if key == "q" {
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
		} else {
			msg = tea.KeyMsg{Type: tea.KeyCtrlC}
		}
		_, cmd := m.Update(msg)
		if cmd == nil {
			t.Fatalf("key %q should quit", key)
		}
	}
}

func TestModelCapsLines(t *testing.T) {
	m := model{}
	for i := 0; i < maxLines+50; i++ {
		next, _ := m.Update(eventMsg(Event{
			Name: "log",
			Data: json.RawMessage(fmt.Sprintf(`{"text":"line %d"}`, i)),
			At:   time.Now(),
		}))
		m = next.(model)
	}
	if len(m.lines) != maxLines {
		t.Fatalf("lines = %d, want capped at %d", len(m.lines), maxLines)
	}
}

func TestOpenStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sandbox_id") != "sbx-1" {
			http.Error(w, "missing sandbox_id", http.StatusBadRequest)
			return
		}
		if r.Header.Get("Authorization") != "Bearer watch-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: connected\ndata: {\"sandbox_id\":\"sbx-1\"}\n\n")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := openStream(ctx, StreamConfig{BaseURL: srv.URL, APIKey: "watch-key", SandboxID: "sbx-1"})
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	select {
	case ev := <-ch:
		if ev.Name != "connected" {
			t.Fatalf("first event = %q, want connected", ev.Name)
		}
	case <-ctx.Done():
		t.Fatal("no event before timeout")
	}
}

func TestOpenStreamRejectedByDaemon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := openStream(context.Background(), StreamConfig{BaseURL: srv.URL, SandboxID: "sbx-1"})
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
