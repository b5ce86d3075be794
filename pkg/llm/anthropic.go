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

// AnthropicProvider implements Capability against the Anthropic Messages
// API, grounded on hector's pkg/llms/anthropic.go (raw HTTP, system prompt
// split from the message list, `content_block_delta` SSE framing).
type AnthropicProvider struct {
	http        *httpClient
	model       string
	temperature float64
	maxTokens   int
	apiVersion  string
	tracer      trace.Tracer
}

type AnthropicConfig struct {
	APIBase     string
	APIKey      string
	APIVersion  string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Tracer      trace.Tracer
}

func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	base := cfg.APIBase
	if base == "" {
		base = "https://api.anthropic.com/v1"
	}
	version := cfg.APIVersion
	if version == "" {
		version = "2023-06-01"
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("llm.anthropic")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicProvider{
		http:        newHTTPClient(base, cfg.APIKey, cfg.Timeout),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		apiVersion:  version,
		tracer:      tracer,
	}
}

func (p *AnthropicProvider) ModelName() string { return p.model }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

func splitSystem(messages []Message) (string, []anthropicMessage) {
	var system string
	out := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		out = append(out, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	return system, out
}

func (p *AnthropicProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error) {
	ctx, span := p.tracer.Start(ctx, "llm.anthropic.generate", trace.WithAttributes(attribute.String("llm.model", p.model)))
	defer span.End()

	system, rest := splitSystem(messages)
	req := anthropicRequest{
		Model:       p.model,
		System:      system,
		Messages:    rest,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}
	resp, err := p.http.postJSON(ctx, "/messages", map[string]string{
		"x-api-key":         p.http.apiKey,
		"anthropic-version": p.apiVersion,
	}, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}
	defer resp.Body.Close()

	var decoded anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Response{}, fmt.Errorf("llm: decode anthropic response: %w", err)
	}
	text := ""
	for _, block := range decoded.Content {
		text += block.Text
	}
	return Response{Text: text, Tokens: decoded.Usage.OutputTokens}, nil
}

func (p *AnthropicProvider) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	ctx, span := p.tracer.Start(ctx, "llm.anthropic.generate_streaming", trace.WithAttributes(attribute.String("llm.model", p.model)))

	system, rest := splitSystem(messages)
	req := anthropicRequest{
		Model:       p.model,
		System:      system,
		Messages:    rest,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		Stream:      true,
	}
	resp, err := p.http.postJSON(ctx, "/messages", map[string]string{
		"x-api-key":         p.http.apiKey,
		"anthropic-version": p.apiVersion,
	}, req)
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
			var event anthropicStreamEvent
			if jsonErr := json.Unmarshal(data, &event); jsonErr != nil {
				return false
			}
			switch event.Type {
			case "content_block_delta":
				if event.Delta.Text == "" {
					return false
				}
				tokens++
				select {
				case out <- StreamChunk{Text: event.Delta.Text}:
				case <-ctx.Done():
					return true
				}
				return false
			case "message_stop":
				out <- StreamChunk{Done: true, Tokens: tokens}
				return true
			default:
				return false
			}
		})
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			out <- StreamChunk{Err: fmt.Errorf("llm: anthropic stream: %w", err)}
		}
	}()
	return out, nil
}
