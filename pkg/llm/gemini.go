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

// GeminiProvider implements Capability against the Google Generative
// Language API, grounded on hector's pkg/llms/gemini.go (raw HTTP,
// candidates[0].content.parts[].text response shape, `alt=sse` streaming).
type GeminiProvider struct {
	http        *httpClient
	model       string
	temperature float64
	maxTokens   int
	tracer      trace.Tracer
}

type GeminiConfig struct {
	APIBase     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Tracer      trace.Tracer
}

func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	base := cfg.APIBase
	if base == "" {
		base = "https://generativelanguage.googleapis.com/v1beta"
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("llm.gemini")
	}
	return &GeminiProvider{
		http:        newHTTPClient(base, cfg.APIKey, cfg.Timeout),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		tracer:      tracer,
	}
}

func (p *GeminiProvider) ModelName() string { return p.model }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature,omitempty"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func toGeminiContents(messages []Message) []geminiContent {
	out := make([]geminiContent, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		if role == "system" {
			role = "user"
		}
		out = append(out, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return out
}

func (p *GeminiProvider) request(messages []Message) geminiRequest {
	req := geminiRequest{Contents: toGeminiContents(messages)}
	req.GenerationConfig.Temperature = p.temperature
	req.GenerationConfig.MaxOutputTokens = p.maxTokens
	return req
}

func (p *GeminiProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error) {
	ctx, span := p.tracer.Start(ctx, "llm.gemini.generate", trace.WithAttributes(attribute.String("llm.model", p.model)))
	defer span.End()

	path := fmt.Sprintf("/models/%s:generateContent?key=%s", p.model, p.http.apiKey)
	resp, err := p.http.postJSON(ctx, path, nil, p.request(messages))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}
	defer resp.Body.Close()

	var decoded geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Response{}, fmt.Errorf("llm: decode gemini response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return Response{}, fmt.Errorf("llm: gemini returned no candidates")
	}
	return Response{
		Text:   decoded.Candidates[0].Content.Parts[0].Text,
		Tokens: decoded.UsageMetadata.CandidatesTokenCount,
	}, nil
}

func (p *GeminiProvider) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	ctx, span := p.tracer.Start(ctx, "llm.gemini.generate_streaming", trace.WithAttributes(attribute.String("llm.model", p.model)))

	path := fmt.Sprintf("/models/%s:streamGenerateContent?alt=sse&key=%s", p.model, p.http.apiKey)
	resp, err := p.http.postJSON(ctx, path, nil, p.request(messages))
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
			var chunk geminiResponse
			if jsonErr := json.Unmarshal(data, &chunk); jsonErr != nil {
				return false
			}
			if len(chunk.Candidates) == 0 || len(chunk.Candidates[0].Content.Parts) == 0 {
				return false
			}
			text := chunk.Candidates[0].Content.Parts[0].Text
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
			out <- StreamChunk{Err: fmt.Errorf("llm: gemini stream: %w", err)}
			return
		}
		out <- StreamChunk{Done: true, Tokens: tokens}
	}()
	return out, nil
}
