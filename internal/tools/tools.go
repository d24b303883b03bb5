// Package tools exposes every upstream sandbox operation as a named tool
// with a JSON-Schema parameter contract.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/basket/boxgate/internal/audit"
	"github.com/basket/boxgate/internal/bus"
	boxotel "github.com/basket/boxgate/internal/otel"
)

// Handler executes one tool with already-validated arguments.
type Handler func(ctx context.Context, args map[string]any) (json.RawMessage, error)

// Tool declares one invocable operation.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
	Handler     Handler
}

// Info is the wire-level description of a registered tool.
type Info struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"input_schema"`
}

type registered struct {
	tool     Tool
	compiled *jsonschema.Schema
}

// Registry holds the compiled tool catalog. It is built once at startup
// and read-only afterwards.
type Registry struct {
	tools   map[string]*registered
	logger  *slog.Logger
	bus     *bus.Bus
	metrics *boxotel.Metrics
}

func NewRegistry(logger *slog.Logger, b *bus.Bus, metrics *boxotel.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]*registered),
		logger:  logger,
		bus:     b,
		metrics: metrics,
	}
}

// Register compiles the tool's parameter schema and adds it to the catalog.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(t.Schema)))
	if err != nil {
		return fmt.Errorf("tool %q: unmarshal schema: %w", t.Name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(t.Name+".json", doc); err != nil {
		return fmt.Errorf("tool %q: add schema resource: %w", t.Name, err)
	}
	compiled, err := c.Compile(t.Name + ".json")
	if err != nil {
		return fmt.Errorf("tool %q: compile schema: %w", t.Name, err)
	}

	r.tools[t.Name] = &registered{tool: t, compiled: compiled}
	return nil
}

// List returns the catalog sorted by tool name.
func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.tools))
	for _, reg := range r.tools {
		out = append(out, Info{
			Name:        reg.tool.Name,
			Description: reg.tool.Description,
			Schema:      reg.tool.Schema,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidationError reports arguments rejected by a tool's schema.
type ValidationError struct {
	Tool    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Message)
}

// UnknownToolError reports an invocation of an unregistered tool.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Tool)
}

// Invoke validates the raw arguments against the tool's schema and runs
// the handler. Every invocation lands in the audit trail.
func (r *Registry) Invoke(ctx context.Context, name string, rawArgs json.RawMessage) (json.RawMessage, error) {
	reg, ok := r.tools[name]
	if !ok {
		return nil, &UnknownToolError{Tool: name}
	}

	if len(rawArgs) == 0 {
		rawArgs = json.RawMessage("{}")
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(rawArgs)))
	if err != nil {
		return nil, &ValidationError{Tool: name, Message: "arguments are not valid JSON: " + err.Error()}
	}
	if err := reg.compiled.Validate(doc); err != nil {
		return nil, &ValidationError{Tool: name, Message: err.Error()}
	}

	var args map[string]any
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, &ValidationError{Tool: name, Message: "arguments must be a JSON object"}
	}

	start := time.Now()
	result, err := reg.tool.Handler(ctx, args)
	r.record(ctx, name, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return result, nil
}

func (r *Registry) record(ctx context.Context, name string, elapsed time.Duration, err error) {
	outcome := "success"
	detail := ""
	if err != nil {
		outcome = "failure"
		detail = err.Error()
	}
	audit.Record("tool.invoke", name, outcome, detail)

	if r.metrics != nil {
		r.metrics.ToolCallDuration.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("tool", name)))
		if err != nil {
			r.metrics.ToolCallErrors.Add(ctx, 1,
				metric.WithAttributes(attribute.String("tool", name)))
		}
	}
	if r.bus != nil {
		topic := bus.TopicToolInvoked
		if err != nil {
			topic = bus.TopicToolFailed
		}
		r.bus.Publish(topic, bus.ToolEvent{Tool: name, Outcome: outcome, Detail: detail})
	}
	if err != nil {
		r.logger.Warn("tool call failed", "tool", name, "error", err, "elapsed", elapsed)
	} else {
		r.logger.Debug("tool call", "tool", name, "elapsed", elapsed)
	}
}
