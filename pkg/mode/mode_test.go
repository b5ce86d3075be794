package mode

import (
	"context"
	"testing"

	"github.com/shuaitravel/agent/pkg/chunk"
	"github.com/shuaitravel/agent/pkg/evaluation"
	"github.com/shuaitravel/agent/pkg/llm"
	"github.com/shuaitravel/agent/pkg/react"
	"github.com/shuaitravel/agent/pkg/thought"
	"github.com/shuaitravel/agent/pkg/tool"
	"github.com/stretchr/testify/require"
)

type fakeCapability struct {
	text string
}

func (f fakeCapability) ModelName() string { return "fake" }

func (f fakeCapability) Generate(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (llm.Response, error) {
	return llm.Response{Text: f.text}, nil
}

func (f fakeCapability) GenerateStreaming(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Text: f.text}
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func collect(t *testing.T, run func(emit chunk.Emitter) Outcome) ([]chunk.Chunk, Outcome) {
	t.Helper()
	var chunks []chunk.Chunk
	outcome := run(func(c chunk.Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	return chunks, outcome
}

func TestDispatcher_EmptyInputRejected(t *testing.T) {
	d := New(nil, tool.New(nil), thought.New(nil), react.New(tool.New(nil), thought.New(nil), evaluation.New(), nil), 10)

	chunks, outcome := collect(t, func(emit chunk.Emitter) Outcome {
		return d.Run(context.Background(), Turn{SessionID: "s1", UserInput: "  ", Mode: ModeDirect}, emit)
	})

	require.False(t, outcome.Success)
	require.Equal(t, chunk.TypeSessionID, chunks[0].Type)
	require.Equal(t, chunk.TypeDone, chunks[len(chunks)-1].Type)
}

func TestDispatcher_DirectModeStreamsAnswer(t *testing.T) {
	cap := fakeCapability{text: "hello"}
	registry := tool.New(nil)
	d := New(cap, registry, thought.New(nil), react.New(registry, thought.New(nil), evaluation.New(), cap), 10)

	chunks, outcome := collect(t, func(emit chunk.Emitter) Outcome {
		return d.Run(context.Background(), Turn{SessionID: "s1", UserInput: "hi", Mode: ModeDirect}, emit)
	})

	require.True(t, outcome.Success)
	require.Equal(t, chunk.TypeSessionID, chunks[0].Type)
	require.Equal(t, chunk.TypeDone, chunks[len(chunks)-1].Type)

	var sawAnswer bool
	for _, c := range chunks {
		if c.Type == chunk.TypeAnswerChunk && c.Text == "hello" {
			sawAnswer = true
		}
	}
	require.True(t, sawAnswer)
}

func TestDispatcher_ReactModeWithNoToolsDelegatesDirect(t *testing.T) {
	cap := fakeCapability{text: "direct fallback"}
	registry := tool.New(nil)
	loop := react.New(registry, thought.New(nil), evaluation.New(), cap)
	d := New(cap, registry, thought.New(nil), loop, 10)

	chunks, outcome := collect(t, func(emit chunk.Emitter) Outcome {
		return d.Run(context.Background(), Turn{SessionID: "s1", UserInput: "just chatting", Mode: ModeReact}, emit)
	})

	require.True(t, outcome.Success)
	require.Equal(t, "direct fallback", outcome.Answer)
	require.Equal(t, chunk.TypeDone, chunks[len(chunks)-1].Type)
}

func TestDispatcher_PlanModeFallsBackToReactOnParseFailure(t *testing.T) {
	cap := fakeCapability{text: "not json at all"}
	registry := tool.New(nil)
	loop := react.New(registry, thought.New(nil), evaluation.New(), cap)
	d := New(cap, registry, thought.New(nil), loop, 10)

	_, outcome := collect(t, func(emit chunk.Emitter) Outcome {
		return d.Run(context.Background(), Turn{SessionID: "s1", UserInput: "plan my trip", Mode: ModePlan}, emit)
	})

	require.True(t, outcome.Success)
}
