package bus

// Subscription lifecycle topics.
const (
	TopicSubscriptionOpened = "subscription.opened"
	TopicSubscriptionClosed = "subscription.closed"
	TopicDriverError        = "subscription.driver_error"
)

// Tool façade topics.
const (
	TopicToolInvoked = "tool.invoked"
	TopicToolFailed  = "tool.failed"
)

// Maintenance topics.
const (
	TopicHealthProbe = "maintenance.health_probe"
)

// SubscriptionEvent is published when an event-stream subscription opens
// or closes.
type SubscriptionEvent struct {
	SubscriptionID string // process-local subscription id
	SandboxID      string // target sandbox
	Kind           string // sandbox-status, sessions, logs
	Transport      string // "sse" or "ws"
}

// DriverErrorEvent is published when a subscription driver recovers from an
// upstream failure.
type DriverErrorEvent struct {
	SubscriptionID string
	SandboxID      string
	Kind           string
	Message        string
}

// ToolEvent is published for every tool invocation.
type ToolEvent struct {
	Tool    string
	Outcome string // "success" or "failure"
	Detail  string
}

// HealthProbeEvent is published after each scheduled upstream health probe.
type HealthProbeEvent struct {
	Healthy bool
	Detail  string
}
