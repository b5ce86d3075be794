package llm

import (
	"context"
	"time"
)

// retrying wraps a Capability with bounded retry of the blocking Generate
// call, implementing spec §6's max_retries model option. Streaming is never
// retried mid-stream — once tokens have started flowing to the client,
// restarting would duplicate output, so GenerateStreaming is a passthrough.
type retrying struct {
	Capability
	attempts int
}

func withRetry(c Capability, maxRetries int) Capability {
	if maxRetries <= 0 {
		return c
	}
	return &retrying{Capability: c, attempts: maxRetries}
}

func (r *retrying) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.attempts; attempt++ {
		resp, err := r.Capability.Generate(ctx, messages, tools)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < r.attempts {
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				return Response{}, ctx.Err()
			}
		}
	}
	return Response{}, lastErr
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}
