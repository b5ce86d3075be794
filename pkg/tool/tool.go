// Package tool defines the registry of named, schema-described executable
// units the ReAct loop invokes. Grounded on hector's pkg/tool (interface
// hierarchy) and pkg/registry (generic name->item store), collapsed to the
// single CallableTool shape the spec requires.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shuaitravel/agent/pkg/obs"
)

// Executor performs the actual work of a tool. Implementations are assumed
// idempotent-safe within a single call; the registry never retries.
type Executor interface {
	Execute(ctx context.Context, params map[string]any) (map[string]any, error)
}

// ExecutorFunc adapts a plain function to an Executor.
type ExecutorFunc func(ctx context.Context, params map[string]any) (map[string]any, error)

func (f ExecutorFunc) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	return f(ctx, params)
}

// Parameter describes one named, typed tool parameter.
type Parameter struct {
	Name        string
	Type        string // "string", "number", "boolean", "array", "object"
	Description string
	Required    bool
}

// Descriptor is the immutable metadata registered alongside an Executor.
type Descriptor struct {
	Name        string
	Description string
	Parameters  []Parameter
	Timeout     time.Duration
	Category    string
	Tags        []string
	// Terminal marks an answer-producing tool: the ReAct loop's stop
	// predicate treats its success as "the task is answered".
	Terminal bool
	// ParamsType is a zero-value instance of the executor's typed params
	// struct (e.g. cityParams{}), used by Schema to reflect a JSON Schema
	// off its json/jsonschema struct tags instead of hand-walking
	// Parameters. Nil falls back to the Parameters-derived schema.
	ParamsType any
}

// RequiredParams returns the subset of Parameters that are required.
func (d Descriptor) RequiredParams() []string {
	out := make([]string, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// Schema renders the descriptor's parameters as a JSON-Schema-shaped map,
// suitable for handing to an LLM capability as a tool definition. When
// ParamsType is set, the schema is reflected off that struct's json/
// jsonschema tags; otherwise it is hand-walked from Parameters.
func (d Descriptor) Schema() map[string]any {
	if d.ParamsType != nil {
		if s, ok := reflectSchema(d.ParamsType); ok {
			return s
		}
	}

	properties := make(map[string]any, len(d.Parameters))
	for _, p := range d.Parameters {
		properties[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   d.RequiredParams(),
	}
}

// reflectSchema turns a params struct into a JSON-Schema-shaped map via
// invopop/jsonschema, matching the pack's convention of deriving wire
// schemas from the same structs mapstructure decodes into rather than
// maintaining a parallel hand-written description.
func reflectSchema(v any) (map[string]any, bool) {
	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	schema := reflector.Reflect(v)
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

// FailureKind discriminates ExecutionResult failures per spec §3/§7.
type FailureKind string

const (
	FailureNotFound       FailureKind = "not_found"
	FailureInvalidParams  FailureKind = "invalid_params"
	FailureExecutionError FailureKind = "execution_error"
	FailureTimeout        FailureKind = "timeout"
)

// Result is the discriminated ExecutionResult of spec §3.
type Result struct {
	Success bool
	Value   map[string]any

	Kind    FailureKind
	Message string
}

func Ok(value map[string]any) Result {
	return Result{Success: true, Value: value}
}

func Fail(kind FailureKind, message string) Result {
	return Result{Success: false, Kind: kind, Message: message}
}

type entry struct {
	descriptor Descriptor
	executor   Executor
}

// Registry maps tool name to its (Descriptor, Executor) pair. Registration
// is one-shot at startup; the registry is effectively read-only at request
// time, so List/Describe/Execute are safe for concurrent callers.
type Registry struct {
	mu      sync.RWMutex
	tracer  trace.Tracer
	items   map[string]entry
	metrics *obs.Metrics
}

// New creates an empty Registry. tracer may be nil, in which case a no-op
// tracer is used (matching the pack's convention of tracer-as-dependency
// rather than ambient global state).
func New(tracer trace.Tracer) *Registry {
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("tool")
	}
	return &Registry{items: make(map[string]entry), tracer: tracer}
}

// WithMetrics attaches the process-wide Prometheus instruments. Optional —
// a Registry built without it simply records nothing.
func (r *Registry) WithMetrics(m *obs.Metrics) *Registry {
	r.metrics = m
	return r
}

// Register adds a tool. Names must be unique; re-registration is an error.
func (r *Registry) Register(d Descriptor, e Executor) error {
	if d.Name == "" {
		return fmt.Errorf("tool: name cannot be empty")
	}
	if e == nil {
		return fmt.Errorf("tool: executor cannot be nil for %q", d.Name)
	}
	if d.Timeout <= 0 {
		d.Timeout = 30 * time.Second
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[d.Name]; exists {
		return fmt.Errorf("tool: %q already registered", d.Name)
	}
	r.items[d.Name] = entry{descriptor: d, executor: e}
	return nil
}

// List returns all registered descriptors.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.items))
	for _, e := range r.items {
		out = append(out, e.descriptor)
	}
	return out
}

// Describe returns the Descriptor for name, if registered.
func (r *Registry) Describe(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[name]
	return e.descriptor, ok
}

// TerminalTools returns the names of tools whose success answers the task.
func (r *Registry) TerminalTools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0)
	for name, e := range r.items {
		if e.descriptor.Terminal {
			out = append(out, name)
		}
	}
	return out
}

// Execute validates required parameters, then runs the executor under a
// deadline equal to the tool's declared timeout. Executor panics are not
// recovered — a panicking executor is a programming error, not a runtime
// condition the registry's contract covers.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) Result {
	r.mu.RLock()
	e, ok := r.items[name]
	r.mu.RUnlock()
	if !ok {
		return Fail(FailureNotFound, fmt.Sprintf("tool %q is not registered", name))
	}

	ctx, span := r.tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", name),
	))
	defer span.End()

	started := time.Now()
	record := func(res Result) Result {
		if r.metrics != nil {
			outcome := "success"
			if !res.Success {
				outcome = string(res.Kind)
			}
			r.metrics.ToolCalls.WithLabelValues(name, outcome).Inc()
			r.metrics.ToolLatency.WithLabelValues(name).Observe(time.Since(started).Seconds())
		}
		return res
	}

	for _, required := range e.descriptor.RequiredParams() {
		if _, present := params[required]; !present {
			span.SetStatus(codes.Error, "invalid_params")
			return record(Fail(FailureInvalidParams, fmt.Sprintf("missing required parameter %q", required)))
		}
	}

	deadline, cancel := context.WithTimeout(ctx, e.descriptor.Timeout)
	defer cancel()

	type outcome struct {
		value map[string]any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := e.executor.Execute(deadline, params)
		done <- outcome{value: value, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			span.SetStatus(codes.Error, o.err.Error())
			return record(Fail(FailureExecutionError, o.err.Error()))
		}
		return record(Ok(o.value))
	case <-deadline.Done():
		if ctx.Err() != nil && deadline.Err() != context.DeadlineExceeded {
			span.SetStatus(codes.Error, "cancelled")
			return record(Fail(FailureExecutionError, fmt.Sprintf("tool %q cancelled: %v", name, ctx.Err())))
		}
		span.SetStatus(codes.Error, "timeout")
		return record(Fail(FailureTimeout, fmt.Sprintf("tool %q exceeded its %s deadline", name, e.descriptor.Timeout)))
	}
}
