package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/basket/boxgate/internal/audit"
	"github.com/basket/boxgate/internal/bus"
	boxotel "github.com/basket/boxgate/internal/otel"
)

// Config holds the supervisor's collaborators. Bus and Metrics are optional.
type Config struct {
	Ops     Ops
	Logger  *slog.Logger
	Bus     *bus.Bus
	Metrics *boxotel.Metrics

	StatusInterval   time.Duration
	SessionsInterval time.Duration
}

// Supervisor starts the correct driver for each accepted subscription and
// guarantees single teardown of its upstream activity.
type Supervisor struct {
	ops     Ops
	logger  *slog.Logger
	bus     *bus.Bus
	metrics *boxotel.Metrics

	statusInterval   time.Duration
	sessionsInterval time.Duration
}

func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	statusInterval := cfg.StatusInterval
	if statusInterval <= 0 {
		statusInterval = 5 * time.Second
	}
	sessionsInterval := cfg.SessionsInterval
	if sessionsInterval <= 0 {
		sessionsInterval = 10 * time.Second
	}
	return &Supervisor{
		ops:              cfg.Ops,
		logger:           logger,
		bus:              cfg.Bus,
		metrics:          cfg.Metrics,
		statusInterval:   statusInterval,
		sessionsInterval: sessionsInterval,
	}
}

// Handle tracks one open channel's active driver. It is owned by the front
// door for the channel's lifetime and never shared across channels.
type Handle struct {
	ID        string
	Transport string

	req Request
	sup *Supervisor

	mu     sync.Mutex
	cancel func() // nil until a driver finished starting
	torn   bool
}

// Request returns the subscription this handle serves.
func (h *Handle) Request() Request { return h.req }

// Start dispatches the request to its driver and returns the channel's
// handle. Start never fails the channel: precondition violations, unknown
// kinds, and driver start failures are reported as error events and leave
// the channel open with no active driver.
func (s *Supervisor) Start(ctx context.Context, req Request, em Emitter, transport string) *Handle {
	req.Normalize()
	h := &Handle{
		ID:        uuid.NewString(),
		Transport: transport,
		req:       req,
		sup:       s,
	}

	if s.metrics != nil {
		s.metrics.ActiveSubscriptions.Add(ctx, 1)
	}
	if s.bus != nil {
		s.bus.Publish(bus.TopicSubscriptionOpened, bus.SubscriptionEvent{
			SubscriptionID: h.ID,
			SandboxID:      req.SandboxID,
			Kind:           string(req.Kind),
			Transport:      transport,
		})
	}
	s.logger.Info("subscription started",
		"subscription_id", h.ID, "sandbox_id", req.SandboxID, "kind", req.Kind, "transport", transport)
	audit.Record("subscription.open", req.SandboxID, "success",
		fmt.Sprintf("kind=%s transport=%s", req.Kind, transport))

	switch req.Kind {
	case KindStatus:
		stop := s.startPoll(ctx, h, em, s.statusInterval,
			func(ctx context.Context) (json.RawMessage, error) {
				return s.ops.GetSandbox(ctx, req.SandboxID)
			},
			func(payload json.RawMessage) {
				em.Emit(EventStatus, StatusPayload{
					SandboxID: req.SandboxID,
					Status:    payload,
					Timestamp: nowStamp(),
				})
			})
		h.setCancel(stop)

	case KindSessions:
		stop := s.startPoll(ctx, h, em, s.sessionsInterval,
			func(ctx context.Context) (json.RawMessage, error) {
				return s.ops.ListSessions(ctx, req.SandboxID)
			},
			func(payload json.RawMessage) {
				em.Emit(EventSessions, SessionsPayload{
					SandboxID: req.SandboxID,
					Sessions:  payload,
					Timestamp: nowStamp(),
				})
			})
		h.setCancel(stop)

	case KindLogs:
		if req.SessionID == "" || req.CommandID == "" {
			em.Emit(EventError, ErrorPayload{
				Message: "log subscriptions require session_id and command_id",
			})
			return h
		}
		stop, err := s.startLogStream(ctx, h, em)
		if err != nil {
			s.driverError(ctx, h, em, "failed to open log stream", err)
			return h
		}
		h.setCancel(stop)

	default:
		em.Emit(EventError, ErrorPayload{
			Message: fmt.Sprintf("unknown subscription kind %q", req.Kind),
		})
	}

	return h
}

// Teardown stops the active driver, waits for it to exit, and releases the
// subscription exactly once. Calling it with no driver recorded, or calling
// it again, is a safe no-op.
func (h *Handle) Teardown() {
	h.mu.Lock()
	if h.torn {
		h.mu.Unlock()
		return
	}
	h.torn = true
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s := h.sup
	if s.metrics != nil {
		s.metrics.ActiveSubscriptions.Add(context.Background(), -1)
	}
	if s.bus != nil {
		s.bus.Publish(bus.TopicSubscriptionClosed, bus.SubscriptionEvent{
			SubscriptionID: h.ID,
			SandboxID:      h.req.SandboxID,
			Kind:           string(h.req.Kind),
			Transport:      h.Transport,
		})
	}
	s.logger.Info("subscription ended",
		"subscription_id", h.ID, "sandbox_id", h.req.SandboxID, "kind", h.req.Kind)
	audit.Record("subscription.close", h.req.SandboxID, "success",
		fmt.Sprintf("kind=%s transport=%s", h.req.Kind, h.Transport))
}

func (h *Handle) setCancel(cancel func()) {
	h.mu.Lock()
	if h.torn {
		// Teardown raced the driver start; stop the driver immediately.
		h.mu.Unlock()
		cancel()
		return
	}
	h.cancel = cancel
	h.mu.Unlock()
}

// driverError reports a recovered upstream failure on the channel without
// terminating it.
func (s *Supervisor) driverError(ctx context.Context, h *Handle, em Emitter, msg string, err error) {
	em.Emit(EventError, ErrorPayload{Message: msg, Detail: err.Error()})
	s.countEvent(ctx)
	s.logger.Warn("subscription driver error",
		"subscription_id", h.ID, "sandbox_id", h.req.SandboxID, "kind", h.req.Kind, "error", err)
	if s.bus != nil {
		s.bus.Publish(bus.TopicDriverError, bus.DriverErrorEvent{
			SubscriptionID: h.ID,
			SandboxID:      h.req.SandboxID,
			Kind:           string(h.req.Kind),
			Message:        err.Error(),
		})
	}
}

func (s *Supervisor) countEvent(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.EventsEmitted.Add(ctx, 1)
	}
}
