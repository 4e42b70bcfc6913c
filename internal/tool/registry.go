package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scianalytics/agentcore/pkg/models"
)

// Limits mirror the teacher's tool_registry.go resource-exhaustion guards
// (MaxToolNameLength, MaxToolParamsSize), applied before any schema
// validation or Execute call.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20 // 10MB
)

var tracer = otel.Tracer("agentcore/tool")

var (
	executions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentcore",
		Subsystem: "tool",
		Name:      "executions_total",
		Help:      "Tool executions by tool name and outcome.",
	}, []string{"tool", "outcome"})

	latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentcore",
		Subsystem: "tool",
		Name:      "execution_seconds",
		Help:      "Tool execution latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"tool"})
)

func init() {
	prometheus.MustRegister(executions, latency)
}

// entry pairs a registered Tool with its compiled JSON-Schema, so argument
// validation doesn't recompile the schema on every call.
type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry manages available tools with thread-safe registration, lookup,
// schema-validated execution, and panic-to-envelope recovery. Generalizes
// the teacher's internal/agent/tool_registry.go ToolRegistry, adding full
// JSON-Schema argument validation (the teacher validates only size/name
// length) via santhosh-tekuri/jsonschema/v6.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Register compiles the tool's declared schema and adds it to the
// registry, replacing any existing tool of the same name. A tool whose
// schema fails to compile is rejected — a programmer error, not a runtime
// condition.
func (r *Registry) Register(t Tool) error {
	compiler := jsonschema.NewCompiler()
	schemaJSON, err := json.Marshal(t.Parameters())
	if err != nil {
		return fmt.Errorf("tool %q: marshal schema: %w", t.Name(), err)
	}
	res, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return fmt.Errorf("tool %q: decode schema: %w", t.Name(), err)
	}
	schemaURL := "mem://" + t.Name() + ".json"
	if err := compiler.AddResource(schemaURL, res); err != nil {
		return fmt.Errorf("tool %q: add schema resource: %w", t.Name(), err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("tool %q: compile schema: %w", t.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[t.Name()] = &entry{tool: t, schema: schema}
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// ListExposedForModel returns function-call descriptors for every
// registered tool with ExposeToLLM() true.
func (r *Registry) ListExposedForModel() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.tool.ExposeToLLM() {
			continue
		}
		out = append(out, Descriptor{
			Name:        e.tool.Name(),
			Description: e.tool.Description(),
			Parameters:  e.tool.Parameters(),
		})
	}
	return out
}

// Execute runs a tool by name against the given session and raw JSON
// arguments. It validates the name length and payload size, validates
// arguments against the tool's declared schema, records a trace span and
// latency/outcome metrics, and recovers from any panic — converting every
// failure mode into a Success=false envelope rather than propagating an
// error across the tool boundary, per spec's failure semantics.
func (r *Registry) Execute(ctx context.Context, name string, session *models.Session, args []byte) models.ToolResultEnvelope {
	ctx, span := tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", name),
	))
	defer span.End()

	if len(name) > MaxToolNameLength {
		return r.fail(name, "tool name exceeds maximum length", "invalid_request", span)
	}
	if len(args) > MaxToolParamsSize {
		return r.fail(name, "tool arguments exceed maximum size", "invalid_request", span)
	}

	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return r.fail(name, "tool not found: "+name, "not_found", span)
	}

	if len(args) == 0 {
		args = []byte("{}")
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return r.fail(name, "tool arguments are not valid JSON", "invalid_request", span)
	}
	if err := e.schema.Validate(decoded); err != nil {
		return r.fail(name, "tool arguments failed schema validation: "+err.Error(), "invalid_request", span)
	}

	return r.executeGuarded(ctx, e.tool, session, args, span)
}

func (r *Registry) executeGuarded(ctx context.Context, t Tool, session *models.Session, args []byte, span trace.Span) (envelope models.ToolResultEnvelope) {
	timer := prometheus.NewTimer(latency.WithLabelValues(t.Name()))
	defer timer.ObserveDuration()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked",
				"tool", t.Name(),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			envelope = models.Failed("internal error executing tool "+t.Name(), "panic")
			span.SetStatus(codes.Error, "panic")
			executions.WithLabelValues(t.Name(), "panic").Inc()
		}
	}()

	result, err := t.Execute(ctx, session, args)
	if err != nil {
		r.logger.Warn("tool returned error", "tool", t.Name(), "error", err)
		span.SetStatus(codes.Error, err.Error())
		executions.WithLabelValues(t.Name(), "error").Inc()
		return models.Failed(sanitize(err.Error()), "execution_error")
	}

	outcome := "success"
	if !result.Success {
		outcome = "failure"
		span.SetStatus(codes.Error, result.Message)
	}
	executions.WithLabelValues(t.Name(), outcome).Inc()
	return result
}

func (r *Registry) fail(name, message, kind string, span trace.Span) models.ToolResultEnvelope {
	span.SetStatus(codes.Error, message)
	executions.WithLabelValues(name, kind).Inc()
	return models.Failed(message, kind)
}

// sanitize strips the raw error text down to something safe to show the
// model — no stack traces leak across the tool boundary.
func sanitize(msg string) string {
	const maxLen = 2000
	if len(msg) > maxLen {
		return msg[:maxLen] + "...(truncated)"
	}
	return msg
}
