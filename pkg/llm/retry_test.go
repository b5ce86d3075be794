package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type flaky struct {
	failuresLeft int
	calls        int
}

func (f *flaky) ModelName() string { return "flaky" }

func (f *flaky) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error) {
	f.calls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return Response{}, errors.New("transient")
	}
	return Response{Text: "ok"}, nil
}

func (f *flaky) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func TestRetrying_SucceedsWithinBudget(t *testing.T) {
	f := &flaky{failuresLeft: 2}
	c := withRetry(f, 3)

	resp, err := c.Generate(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text)
	require.Equal(t, 3, f.calls)
}

func TestRetrying_ExhaustsBudget(t *testing.T) {
	f := &flaky{failuresLeft: 10}
	c := withRetry(f, 2)

	_, err := c.Generate(context.Background(), nil, nil)
	require.Error(t, err)
	require.Equal(t, 3, f.calls)
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New(Entry{Provider: "unknown"}, nil, nil)
	require.Error(t, err)
}

func TestBuildRegistry_SkipsBadEntriesButKeepsGood(t *testing.T) {
	reg, errs := BuildRegistry([]Entry{
		{ModelID: "bad", Provider: "unknown"},
		{ModelID: "good", Provider: ProviderOpenAI, Model: "gpt-4o-mini"},
	}, nil, nil)
	require.Len(t, errs, 1)
	_, ok := reg.Get("good")
	require.True(t, ok)
	_, ok = reg.Get("bad")
	require.False(t, ok)
}
