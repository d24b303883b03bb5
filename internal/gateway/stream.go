package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/basket/boxgate/internal/relay"
)

// sseEmitter is the single logical writer for one SSE channel. The mutex
// serializes driver emits against the front door's own connected and
// disconnected frames; once closed, emits are no-ops.
type sseEmitter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
	count   *atomic.Int64
}

func (e *sseEmitter) Emit(name string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("sse: marshal event", "event", name, "error", err)
		return
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		// Client went away; stop writing. Teardown follows via the
		// request context.
		e.closed = true
		return
	}
	e.flusher.Flush()
	if e.count != nil {
		e.count.Add(1)
	}
}

func (e *sseEmitter) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// parseSubscription validates the front-door query parameters. A missing
// sandbox_id is the only failure that refuses the channel outright.
func parseSubscription(r *http.Request) (relay.Request, error) {
	q := r.URL.Query()
	req := relay.Request{
		SandboxID: q.Get("sandbox_id"),
		SessionID: q.Get("session_id"),
		CommandID: q.Get("command_id"),
		Kind:      relay.Kind(q.Get("kind")),
	}
	if req.SandboxID == "" {
		return req, fmt.Errorf("sandbox_id query parameter is required")
	}
	req.Normalize()
	return req, nil
}

// handleEvents implements GET /api/events: the SSE subscription front door.
// Lifecycle: validate, headers, connected, supervisor, block on the request
// context, teardown, disconnected.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := parseSubscription(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	em := &sseEmitter{w: w, flusher: flusher, count: &s.eventsEmitted}
	s.activeChannels.Add(1)
	defer s.activeChannels.Add(-1)

	em.Emit(relay.EventConnected, relay.ConnectedPayload{
		SandboxID: req.SandboxID,
		Kind:      req.Kind,
		SessionID: req.SessionID,
		CommandID: req.CommandID,
	})

	h := s.cfg.Supervisor.Start(r.Context(), req, em, "sse")
	slog.Debug("sse: channel open", "subscription_id", h.ID, "sandbox_id", req.SandboxID, "kind", req.Kind)

	<-r.Context().Done()

	// Teardown waits for the driver goroutine, so disconnected is the
	// last frame on the channel.
	h.Teardown()
	em.Emit(relay.EventDisconnected, relay.DisconnectedPayload{Message: "subscription closed"})
	em.Close()
	slog.Debug("sse: channel closed", "subscription_id", h.ID, "sandbox_id", req.SandboxID)
}
