package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/shuaitravel/agent/pkg/obs"
)

type stubCapability struct {
	err    error
	stream []StreamChunk
}

func (s *stubCapability) ModelName() string { return "stub-model" }

func (s *stubCapability) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error) {
	if s.err != nil {
		return Response{}, s.err
	}
	return Response{Text: "ok"}, nil
}

func (s *stubCapability) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan StreamChunk, len(s.stream))
	for _, c := range s.stream {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func TestWithMetrics_NilMetricsIsPassthrough(t *testing.T) {
	c := withMetrics(&stubCapability{}, nil)
	_, ok := c.(*instrumented)
	require.False(t, ok)
}

func TestWithMetrics_RecordsGenerateOutcome(t *testing.T) {
	m := obs.NewMetrics("test_llm_generate")
	c := withMetrics(&stubCapability{}, m)

	_, err := c.Generate(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, float64(1), testutil.ToFloat64(m.LLMCalls.WithLabelValues("stub-model", "success")))

	failing := withMetrics(&stubCapability{err: errors.New("boom")}, m)
	_, err = failing.Generate(context.Background(), nil, nil)
	require.Error(t, err)
	require.Equal(t, float64(1), testutil.ToFloat64(m.LLMCalls.WithLabelValues("stub-model", "error")))
}

func TestWithMetrics_RecordsStreamingOutcome(t *testing.T) {
	m := obs.NewMetrics("test_llm_stream")
	c := withMetrics(&stubCapability{stream: []StreamChunk{{Text: "a"}, {Text: "b", Done: true}}}, m)

	ch, err := c.GenerateStreaming(context.Background(), nil, nil)
	require.NoError(t, err)
	for range ch {
	}
	require.Equal(t, float64(1), testutil.ToFloat64(m.LLMCalls.WithLabelValues("stub-model", "success")))
}
