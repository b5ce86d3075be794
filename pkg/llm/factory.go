package llm

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/shuaitravel/agent/pkg/obs"
)

// Provider enumerates the supported model providers from spec §6.
type Provider string

const (
	ProviderOpenAI           Provider = "openai"
	ProviderAnthropic        Provider = "anthropic"
	ProviderGoogle           Provider = "google"
	ProviderOpenAICompatible Provider = "openai-compatible"
)

// Entry mirrors one row of the model manifest in spec §6.
type Entry struct {
	ModelID     string
	Name        string
	Provider    Provider
	Model       string
	APIBase     string
	APIKey      string
	APIVersion  string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

// New builds the Capability for a manifest entry. "openai-compatible" is
// the OpenAI implementation pointed at a caller-supplied api_base — the
// wire format does not change, only the endpoint (spec §6). metrics is
// optional; pass nil to skip the llm Prometheus subsystem entirely.
func New(e Entry, tracer trace.Tracer, metrics *obs.Metrics) (Capability, error) {
	switch e.Provider {
	case ProviderOpenAI, ProviderOpenAICompatible:
		return withMetrics(withRetry(NewOpenAIProvider(OpenAIConfig{
			APIBase:     e.APIBase,
			APIKey:      e.APIKey,
			Model:       e.Model,
			Temperature: e.Temperature,
			MaxTokens:   e.MaxTokens,
			Timeout:     e.Timeout,
			Tracer:      tracer,
		}), e.MaxRetries), metrics), nil
	case ProviderAnthropic:
		return withMetrics(withRetry(NewAnthropicProvider(AnthropicConfig{
			APIBase:     e.APIBase,
			APIKey:      e.APIKey,
			APIVersion:  e.APIVersion,
			Model:       e.Model,
			Temperature: e.Temperature,
			MaxTokens:   e.MaxTokens,
			Timeout:     e.Timeout,
			Tracer:      tracer,
		}), e.MaxRetries), metrics), nil
	case ProviderGoogle:
		return withMetrics(withRetry(NewGeminiProvider(GeminiConfig{
			APIBase:     e.APIBase,
			APIKey:      e.APIKey,
			Model:       e.Model,
			Temperature: e.Temperature,
			MaxTokens:   e.MaxTokens,
			Timeout:     e.Timeout,
			Tracer:      tracer,
		}), e.MaxRetries), metrics), nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q (supported: openai, anthropic, google, openai-compatible)", e.Provider)
	}
}

// BuildRegistry constructs a Registry from the manifest entries, skipping
// (and returning) entries that fail to build rather than aborting startup
// entirely — one misconfigured model should not take down every other one.
func BuildRegistry(entries []Entry, tracer trace.Tracer, metrics *obs.Metrics) (*Registry, []error) {
	reg := NewRegistry()
	var errs []error
	for _, e := range entries {
		cap, err := New(e, tracer, metrics)
		if err != nil {
			errs = append(errs, fmt.Errorf("model %q: %w", e.ModelID, err))
			continue
		}
		reg.Register(e.ModelID, cap)
	}
	return reg, errs
}
