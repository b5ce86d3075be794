// Package llm abstracts the chat-completion surface (spec §4.1, C1). The
// ReAct loop, Thought Engine, and Mode Dispatcher depend only on
// Capability — never on a specific provider's wire format, which the spec
// treats as an external collaborator.
package llm

import "context"

// Capability is the blocking and token-streaming chat-completion surface.
// Grounded on hector's pkg/llms.LLMProvider, narrowed to what the ReAct
// core needs: no structured-output variant, no MIME negotiation.
type Capability interface {
	// Generate performs a single non-streaming completion.
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error)

	// GenerateStreaming performs a token-streaming completion. The
	// returned channel is closed after a chunk with Done=true (or Err
	// set) has been sent.
	GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error)

	// ModelName identifies the underlying model for tracing/logging.
	ModelName() string
}

// Registry maps a configured model_id to its Capability, built from the
// model manifest (spec §6). Effectively read-only after startup; the
// config loader hot-swaps it wholesale on manifest changes.
type Registry struct {
	byModelID map[string]Capability
}

func NewRegistry() *Registry {
	return &Registry{byModelID: make(map[string]Capability)}
}

func (r *Registry) Register(modelID string, c Capability) {
	r.byModelID[modelID] = c
}

func (r *Registry) Get(modelID string) (Capability, bool) {
	c, ok := r.byModelID[modelID]
	return c, ok
}

// Snapshot returns an independent copy of the registry's model_id table.
// The config loader's hot-swap does not use it: it builds a fresh Registry
// with BuildRegistry on every reload.
func (r *Registry) Snapshot() *Registry {
	cp := NewRegistry()
	for k, v := range r.byModelID {
		cp.byModelID[k] = v
	}
	return cp
}
