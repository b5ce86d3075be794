package react

import (
	"context"
	"testing"
	"time"

	"github.com/shuaitravel/agent/pkg/evaluation"
	"github.com/shuaitravel/agent/pkg/llm"
	"github.com/shuaitravel/agent/pkg/thought"
	"github.com/shuaitravel/agent/pkg/tool"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	r := tool.New(nil)
	err := r.Register(tool.Descriptor{
		Name:       "final_answer",
		Terminal:   true,
		Parameters: []tool.Parameter{{Name: "summary", Type: "string", Required: true}},
	}, tool.ExecutorFunc(func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"summary": params["summary"]}, nil
	}))
	require.NoError(t, err)
	return r
}

func TestLoop_ZeroStepsDelegatesToDirectAnswer(t *testing.T) {
	registry := tool.New(nil) // no tools registered -> planning always yields zero steps
	l := New(registry, thought.New(nil), evaluation.New(), nil)

	result := l.Run(context.Background(), Config{}, "hello there", nil, nil, nil)
	require.Equal(t, StatusCompleted, result.Status)
	require.NotEmpty(t, result.History)
}

func TestLoop_MaxStepsIsHardStop(t *testing.T) {
	registry := tool.New(nil)
	require.NoError(t, registry.Register(tool.Descriptor{
		Name: "city_search",
		Parameters: []tool.Parameter{
			{Name: "interests", Type: "array"},
		},
	}, tool.ExecutorFunc(func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"cities": []string{"成都"}}, nil
	})))

	l := New(registry, thought.New(nil), evaluation.New(), nil)

	var traces []string
	result := l.Run(context.Background(), Config{MaxSteps: 3}, "推荐一个城市", nil, nil, func(trace string, _ time.Duration) {
		traces = append(traces, trace)
	})

	require.LessOrEqual(t, result.StepsTaken, 3)
	require.NotEmpty(t, traces)
}

func TestLoop_RespectsCapabilityNilGracefully(t *testing.T) {
	registry := newTestRegistry(t)
	l := New(registry, thought.New(nil), evaluation.New(), nil)
	result := l.Run(context.Background(), Config{MaxSteps: 2}, "一般闲聊", nil, nil, nil)
	require.Equal(t, StatusCompleted, result.Status)
}

var _ llm.Capability = (*stubCapability)(nil)

type stubCapability struct{}

func (stubCapability) ModelName() string { return "stub" }
func (stubCapability) Generate(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (llm.Response, error) {
	return llm.Response{Text: "stub answer"}, nil
}
func (stubCapability) GenerateStreaming(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func TestLoop_DirectAnswerUsesCapability(t *testing.T) {
	registry := tool.New(nil)
	l := New(registry, thought.New(nil), evaluation.New(), stubCapability{})
	result := l.Run(context.Background(), Config{}, "hi", nil, nil, nil)
	require.Equal(t, "stub answer", result.DirectAnswer)
}
