// Package gateway is the HTTP surface of boxgate: the SSE and WebSocket
// event front doors, the tool endpoints, health and metrics, wrapped in
// auth and CORS middleware.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/basket/boxgate/internal/audit"
	"github.com/basket/boxgate/internal/bus"
	"github.com/basket/boxgate/internal/relay"
	"github.com/basket/boxgate/internal/sandbox"
	"github.com/basket/boxgate/internal/tools"
	"github.com/basket/boxgate/internal/upstream"
)

type Config struct {
	API        *sandbox.API
	Registry   *tools.Registry
	Supervisor *relay.Supervisor
	Bus        *bus.Bus

	// AllowOrigins controls accepted Origin headers for browser WS
	// connections. Empty list means same-origin only.
	AllowOrigins []string

	// ConfigFingerprint is the hash of the active config, exposed on /healthz.
	ConfigFingerprint string

	Version string
}

type Server struct {
	cfg Config

	activeChannels atomic.Int64
	eventsEmitted  atomic.Int64
	toolCalls      atomic.Int64
	toolFailures   atomic.Int64
}

func New(cfg Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/api/tools", s.handleTools)
	mux.HandleFunc("/api/tools/call", s.handleToolCall)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	upstreamOK := true
	upstreamDetail := ""
	if _, err := s.cfg.API.Health(ctx); err != nil {
		upstreamOK = false
		upstreamDetail = err.Error()
	}

	payload := map[string]any{
		"healthy":            true,
		"upstream_ok":        upstreamOK,
		"version":            s.cfg.Version,
		"config_fingerprint": s.cfg.ConfigFingerprint,
		"active_channels":    s.activeChannels.Load(),
	}
	if upstreamDetail != "" {
		payload["upstream_detail"] = upstreamDetail
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	mem := &runtime.MemStats{}
	runtime.ReadMemStats(mem)

	subscribers := 0
	if s.cfg.Bus != nil {
		subscribers = s.cfg.Bus.SubscriberCount()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active_channels":  s.activeChannels.Load(),
		"events_emitted":   s.eventsEmitted.Load(),
		"tool_calls":       s.toolCalls.Load(),
		"tool_failures":    s.toolFailures.Load(),
		"audit_failures":   audit.FailCount(),
		"bus_subscribers":  subscribers,
		"alloc_bytes":      mem.Alloc,
		"goroutine_count":  runtime.NumGoroutine(),
	})
}

// handleTools implements GET /api/tools: the tool catalog with schemas.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.cfg.Registry.List()})
}

type toolCallRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// handleToolCall implements POST /api/tools/call.
func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req toolCallRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "tool name is required")
		return
	}

	s.toolCalls.Add(1)
	result, err := s.cfg.Registry.Invoke(r.Context(), req.Name, req.Arguments)
	if err != nil {
		s.toolFailures.Add(1)
		s.writeToolError(w, req.Name, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// writeToolError maps tool failures onto HTTP statuses: unknown tool is
// 404, argument validation is 400, an upstream API error keeps its status
// visible behind a 502, anything else is 500.
func (s *Server) writeToolError(w http.ResponseWriter, name string, err error) {
	var unknown *tools.UnknownToolError
	if errors.As(err, &unknown) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var invalid *tools.ValidationError
	if errors.As(err, &invalid) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":           err.Error(),
			"upstream_status": apiErr.Status,
		})
		return
	}
	slog.Error("tool call failed", "tool", name, "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
