package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/basket/boxgate/internal/relay"
)

const wsWriteTimeout = 10 * time.Second

// wsFrame is one outbound WebSocket message, mirroring the SSE framing.
type wsFrame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// wsEmitter serializes frames onto one WebSocket connection.
type wsEmitter struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	count  *atomic.Int64
}

func (e *wsEmitter) Emit(name string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, e.conn, wsFrame{Event: name, Payload: payload}); err != nil {
		e.closed = true
		return
	}
	if e.count != nil {
		e.count.Add(1)
	}
}

func (e *wsEmitter) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// handleWS implements GET /ws: the WebSocket subscription front door. The
// lifecycle mirrors the SSE handler; events arrive as JSON frames instead
// of SSE lines.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	req, err := parseSubscription(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Same-origin requests are always allowed by the websocket
		// library; the allowlist covers explicit cross-origin use.
		OriginPatterns: s.cfg.AllowOrigins,
	})
	if err != nil {
		return
	}

	em := &wsEmitter{conn: conn, count: &s.eventsEmitted}
	s.activeChannels.Add(1)
	defer s.activeChannels.Add(-1)

	em.Emit(relay.EventConnected, relay.ConnectedPayload{
		SandboxID: req.SandboxID,
		Kind:      req.Kind,
		SessionID: req.SessionID,
		CommandID: req.CommandID,
	})

	h := s.cfg.Supervisor.Start(r.Context(), req, em, "ws")
	slog.Debug("ws: channel open", "subscription_id", h.ID, "sandbox_id", req.SandboxID, "kind", req.Kind)

	// Drain inbound frames so pings are answered and closure is noticed.
	// The subscription itself is query-parameter driven; inbound payloads
	// are ignored.
	readCtx, readDone := context.WithCancel(r.Context())
	go func() {
		defer readDone()
		for {
			if _, _, err := conn.Read(readCtx); err != nil {
				return
			}
		}
	}()

	<-readCtx.Done()

	h.Teardown()
	em.Emit(relay.EventDisconnected, relay.DisconnectedPayload{Message: "subscription closed"})
	em.Close()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	slog.Debug("ws: channel closed", "subscription_id", h.ID, "sandbox_id", req.SandboxID)
}
