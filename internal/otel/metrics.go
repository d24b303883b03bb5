package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all Boxgate metric instruments.
type Metrics struct {
	UpstreamDuration    metric.Float64Histogram
	UpstreamErrors      metric.Int64Counter
	ActiveSubscriptions metric.Int64UpDownCounter
	EventsEmitted       metric.Int64Counter
	ToolCallDuration    metric.Float64Histogram
	ToolCallErrors      metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.UpstreamDuration, err = meter.Float64Histogram("boxgate.upstream.duration",
		metric.WithDescription("Upstream API request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.UpstreamErrors, err = meter.Int64Counter("boxgate.upstream.errors",
		metric.WithDescription("Upstream API request error count"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveSubscriptions, err = meter.Int64UpDownCounter("boxgate.subscriptions.active",
		metric.WithDescription("Number of currently open event subscriptions"),
	)
	if err != nil {
		return nil, err
	}

	m.EventsEmitted, err = meter.Int64Counter("boxgate.events.emitted",
		metric.WithDescription("Total events delivered to subscribers"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallDuration, err = meter.Float64Histogram("boxgate.tool.duration",
		metric.WithDescription("Tool call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallErrors, err = meter.Int64Counter("boxgate.tool.errors",
		metric.WithDescription("Tool call error count"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
