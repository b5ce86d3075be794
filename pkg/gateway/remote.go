package gateway

import (
	"context"

	"github.com/shuaitravel/agent/pkg/chunk"
	"github.com/shuaitravel/agent/pkg/mode"
	"github.com/shuaitravel/agent/pkg/rpc"
)

// RemoteDispatcher adapts an *rpc.Client into the Gateway's Dispatcher
// interface, for the deployment where the Agent Service runs as a separate
// process from the Gateway (spec §2). It turns the client's NDJSON
// StreamFrame channel back into Chunks so the rest of the Gateway never
// needs to know whether it is talking to an in-process Dispatcher or one
// over the wire.
type RemoteDispatcher struct {
	client *rpc.Client
}

// NewRemoteDispatcher wraps a Client as a Dispatcher.
func NewRemoteDispatcher(client *rpc.Client) *RemoteDispatcher {
	return &RemoteDispatcher{client: client}
}

// Run satisfies Dispatcher by calling StreamMessage and re-emitting each
// frame as a Chunk.
func (d *RemoteDispatcher) Run(ctx context.Context, turn mode.Turn, emit chunk.Emitter) mode.Outcome {
	// The stream frames carry no session id, so it is emitted here first,
	// as an in-process Dispatcher does.
	if err := emit(chunk.SessionID(turn.SessionID)); err != nil {
		return mode.Outcome{Success: false, Error: err.Error()}
	}

	frames, err := d.client.StreamMessage(ctx, rpc.MessageParams{
		SessionID: turn.SessionID,
		UserInput: turn.UserInput,
		Mode:      string(turn.Mode),
		Stream:    true,
	})
	if err != nil {
		_ = emit(chunk.Error(err.Error()))
		_ = emit(chunk.Done(chunk.Stats{}))
		return mode.Outcome{Success: false, Error: err.Error()}
	}

	var totalSteps int
	var success bool
	var answer string

	for frame := range frames {
		c, ok := fromStreamFrame(frame, &totalSteps, &success)
		if !ok {
			continue
		}
		if c.Type == chunk.TypeAnswerChunk {
			answer += c.Text
		}
		if err := emit(c); err != nil {
			return mode.Outcome{Success: false, Error: err.Error()}
		}
	}

	return mode.Outcome{Success: success, Answer: answer, TotalSteps: totalSteps}
}

func fromStreamFrame(f rpc.StreamFrame, totalSteps *int, success *bool) (chunk.Chunk, bool) {
	switch f.ChunkType {
	case "thinking_start":
		return chunk.ReasoningStart(), true
	case "thinking_chunk":
		return chunk.ReasoningChunk(f.Content), true
	case "thinking_end":
		return chunk.ReasoningEnd(), true
	case "answer_start":
		return chunk.AnswerStart(), true
	case "answer":
		return chunk.AnswerChunk(f.Content), true
	case "error":
		return chunk.Error(f.Content), true
	case "done":
		*success = true
		return chunk.Done(chunk.Stats{Success: true, TotalSteps: *totalSteps}), true
	default:
		return chunk.Chunk{}, false
	}
}
