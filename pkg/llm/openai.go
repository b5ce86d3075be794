package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpenAIProvider implements Capability against the OpenAI chat-completions
// API. Grounded on hector's pkg/llms/openai.go: raw net/http rather than an
// SDK, a per-call OpenTelemetry span, and SSE `data: {...}` / `data: [DONE]`
// framing for streaming.
type OpenAIProvider struct {
	http        *httpClient
	model       string
	temperature float64
	maxTokens   int
	tracer      trace.Tracer
}

type OpenAIConfig struct {
	APIBase     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Tracer      trace.Tracer
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	base := cfg.APIBase
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("llm.openai")
	}
	return &OpenAIProvider{
		http:        newHTTPClient(base, cfg.APIKey, cfg.Timeout),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		tracer:      tracer,
	}
}

func (p *OpenAIProvider) ModelName() string { return p.model }

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func toOpenAIMessages(messages []Message) []openAIChatMessage {
	out := make([]openAIChatMessage, len(messages))
	for i, m := range messages {
		out[i] = openAIChatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error) {
	ctx, span := p.tracer.Start(ctx, "llm.openai.generate", trace.WithAttributes(attribute.String("llm.model", p.model)))
	defer span.End()

	req := openAIChatRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}
	resp, err := p.http.postJSON(ctx, "/chat/completions", map[string]string{"Authorization": "Bearer " + p.http.apiKey}, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}
	defer resp.Body.Close()

	var decoded openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Response{}, fmt.Errorf("llm: decode openai response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return Response{}, fmt.Errorf("llm: openai returned no choices")
	}
	return Response{Text: decoded.Choices[0].Message.Content, Tokens: decoded.Usage.TotalTokens}, nil
}

func (p *OpenAIProvider) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	ctx, span := p.tracer.Start(ctx, "llm.openai.generate_streaming", trace.WithAttributes(attribute.String("llm.model", p.model)))

	req := openAIChatRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		Stream:      true,
	}
	resp, err := p.http.postJSON(ctx, "/chat/completions", map[string]string{"Authorization": "Bearer " + p.http.apiKey}, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer span.End()
		defer close(out)
		defer resp.Body.Close()

		tokens := 0
		err := scanSSE(resp.Body, func(data []byte) bool {
			if string(data) == "[DONE]" {
				out <- StreamChunk{Done: true, Tokens: tokens}
				return true
			}
			var chunk openAIStreamChunk
			if jsonErr := json.Unmarshal(data, &chunk); jsonErr != nil {
				return false
			}
			if len(chunk.Choices) == 0 {
				return false
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				return false
			}
			tokens++
			select {
			case out <- StreamChunk{Text: text}:
			case <-ctx.Done():
				return true
			}
			return false
		})
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			out <- StreamChunk{Err: fmt.Errorf("llm: openai stream: %w", err)}
		}
	}()
	return out, nil
}
