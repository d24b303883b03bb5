// Package relay turns one client subscription into a supervised upstream
// activity (status poll, sessions poll, or live log stream) and normalizes
// the results into a single outbound event protocol.
package relay

import "encoding/json"

// Outbound event names. Per channel, "connected" is always first and
// "disconnected" always last; everything between comes from one driver.
const (
	EventConnected    = "connected"
	EventStatus       = "sandbox-status"
	EventSessions     = "sessions-update"
	EventLog          = "log"
	EventLogComplete  = "log-complete"
	EventLogError     = "log-error"
	EventError        = "error"
	EventDisconnected = "disconnected"
)

// Emitter delivers named events to one subscriber channel. Implementations
// serialize writes so per-channel ordering is strict, and treat emits on a
// closed channel as no-ops.
type Emitter interface {
	Emit(name string, payload any)
}

// Kind selects which driver serves a subscription.
type Kind string

const (
	KindStatus   Kind = "sandbox-status"
	KindSessions Kind = "sessions"
	KindLogs     Kind = "logs"
)

// Request is one client's validated subscription. SandboxID presence is
// checked by the front door before any channel opens; the logs-kind
// session/command requirement is checked by the supervisor and reported as
// an error event on the open channel.
type Request struct {
	SandboxID string `json:"sandbox_id"`
	SessionID string `json:"session_id,omitempty"`
	CommandID string `json:"command_id,omitempty"`
	Kind      Kind   `json:"kind"`
}

// Normalize applies the default kind.
func (r *Request) Normalize() {
	if r.Kind == "" {
		r.Kind = KindStatus
	}
}

// ConnectedPayload acknowledges the subscription by echoing its parameters.
type ConnectedPayload struct {
	SandboxID string `json:"sandbox_id"`
	Kind      Kind   `json:"kind"`
	SessionID string `json:"session_id,omitempty"`
	CommandID string `json:"command_id,omitempty"`
}

// StatusPayload carries one status-poll tick.
type StatusPayload struct {
	SandboxID string          `json:"sandbox_id"`
	Status    json.RawMessage `json:"status"`
	Timestamp string          `json:"timestamp"`
}

// SessionsPayload carries one sessions-poll tick.
type SessionsPayload struct {
	SandboxID string          `json:"sandbox_id"`
	Sessions  json.RawMessage `json:"sessions"`
	Timestamp string          `json:"timestamp"`
}

// LogPayload carries one raw chunk of command output. Chunk boundaries do
// not align with log lines; the text is an opaque slice of the stream.
type LogPayload struct {
	SandboxID string `json:"sandbox_id"`
	SessionID string `json:"session_id"`
	CommandID string `json:"command_id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// LogEndPayload marks the clean end of a log stream.
type LogEndPayload struct {
	SandboxID string `json:"sandbox_id"`
	SessionID string `json:"session_id"`
	CommandID string `json:"command_id"`
}

// LogErrorPayload reports a mid-stream failure. The stream is not retried.
type LogErrorPayload struct {
	SandboxID string `json:"sandbox_id"`
	SessionID string `json:"session_id"`
	CommandID string `json:"command_id"`
	Message   string `json:"message"`
}

// ErrorPayload reports any recovered failure: validation, upstream call,
// stream establishment, or an unknown kind.
type ErrorPayload struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// DisconnectedPayload acknowledges teardown before the channel closes.
type DisconnectedPayload struct {
	Message string `json:"message"`
}
