package llm

import (
	"context"
	"time"

	"github.com/shuaitravel/agent/pkg/obs"
)

// instrumented wraps a Capability with the llm Prometheus subsystem,
// grounded on the same optional WithMetrics pattern used by the tool
// Registry and the ReAct Loop — a Capability built without metrics simply
// records nothing.
type instrumented struct {
	Capability
	metrics *obs.Metrics
}

func withMetrics(c Capability, m *obs.Metrics) Capability {
	if m == nil {
		return c
	}
	return &instrumented{Capability: c, metrics: m}
}

func (i *instrumented) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error) {
	started := time.Now()
	resp, err := i.Capability.Generate(ctx, messages, tools)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	i.metrics.LLMCalls.WithLabelValues(i.ModelName(), outcome).Inc()
	i.metrics.LLMCallLatency.WithLabelValues(i.ModelName()).Observe(time.Since(started).Seconds())
	return resp, err
}

func (i *instrumented) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	started := time.Now()
	ch, err := i.Capability.GenerateStreaming(ctx, messages, tools)
	if err != nil {
		i.metrics.LLMCalls.WithLabelValues(i.ModelName(), "error").Inc()
		i.metrics.LLMCallLatency.WithLabelValues(i.ModelName()).Observe(time.Since(started).Seconds())
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		outcome := "success"
		for c := range ch {
			if c.Err != nil {
				outcome = "error"
			}
			out <- c
		}
		i.metrics.LLMCalls.WithLabelValues(i.ModelName(), outcome).Inc()
		i.metrics.LLMCallLatency.WithLabelValues(i.ModelName()).Observe(time.Since(started).Seconds())
	}()
	return out, nil
}
