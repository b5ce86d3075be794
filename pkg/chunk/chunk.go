// Package chunk defines the ordered event stream emitted by a ReAct turn.
//
// A Chunk is the unit exchanged across both hops of the pipeline: the
// internal RPC call from Gateway to Agent, and the outward SSE stream from
// Gateway to the browser. Producers never drop a Chunk — ordering carries
// meaning (reasoning precedes answer, session_id precedes everything) so a
// slow consumer must block the producer rather than lose events.
package chunk

import (
	"context"
	"time"
)

// Type tags the kind of payload a Chunk carries.
type Type string

const (
	TypeSessionID      Type = "session_id"
	TypeReasoningStart Type = "reasoning_start"
	TypeReasoningChunk Type = "reasoning_chunk"
	TypeReasoningEnd   Type = "reasoning_end"
	TypeAnswerStart    Type = "answer_start"
	TypeAnswerChunk    Type = "answer_chunk"
	TypeHeartbeat      Type = "heartbeat"
	TypeError          Type = "error"
	TypeDone           Type = "done"
)

// Stats accompanies a TypeDone chunk, summarizing the completed turn.
type Stats struct {
	TotalSteps int      `json:"total_steps"`
	ToolsUsed  []string `json:"tools_used"`
	Success    bool     `json:"success"`
}

// Chunk is the tagged union emitted over a turn's stream. At most one field
// besides Type/Timestamp is meaningful per Type.
type Chunk struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Message   string `json:"message,omitempty"`
	Stats     *Stats `json:"stats,omitempty"`
}

func SessionID(id string) Chunk {
	return Chunk{Type: TypeSessionID, Timestamp: time.Now(), SessionID: id}
}

func ReasoningStart() Chunk { return Chunk{Type: TypeReasoningStart, Timestamp: time.Now()} }

func ReasoningChunk(text string) Chunk {
	return Chunk{Type: TypeReasoningChunk, Timestamp: time.Now(), Text: text}
}

func ReasoningEnd() Chunk { return Chunk{Type: TypeReasoningEnd, Timestamp: time.Now()} }

func AnswerStart() Chunk { return Chunk{Type: TypeAnswerStart, Timestamp: time.Now()} }

func AnswerChunk(text string) Chunk {
	return Chunk{Type: TypeAnswerChunk, Timestamp: time.Now(), Text: text}
}

func Heartbeat() Chunk { return Chunk{Type: TypeHeartbeat, Timestamp: time.Now()} }

func Error(message string) Chunk {
	return Chunk{Type: TypeError, Timestamp: time.Now(), Message: message}
}

func Done(stats Stats) Chunk {
	return Chunk{Type: TypeDone, Timestamp: time.Now(), Stats: &stats}
}

// Emitter is a first-class streaming callback: implementations call it
// synchronously at well-defined points in the loop/dispatcher. It mirrors
// hector's strategy callbacks (PrepareIteration/AfterIteration) but
// collapses to a single call per emitted event.
type Emitter func(Chunk) error

// Queue is a bounded channel between a producer (the ReAct loop or a mode
// strategy) and a consumer (the RPC writer or the SSE gateway). Sends block
// when the queue is full: dropping would break the ordering contract.
type Queue struct {
	ch chan Chunk
}

// NewQueue creates a bounded Queue. Callers read Chunks via C() until it is
// closed by Close().
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Chunk, capacity)}
}

// C returns the receive side of the queue.
func (q *Queue) C() <-chan Chunk {
	return q.ch
}

// Emit blocks until the Chunk is queued or the context is cancelled, in
// which case it returns ctx.Err(). It never drops a queued Chunk; calling it
// after Close panics (see Close).
func (q *Queue) Emit(ctx context.Context, c Chunk) error {
	select {
	case q.ch <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals no further Chunks will be sent. Calling Emit after Close
// panics, matching Go channel semantics — callers own single-writer
// discipline.
func (q *Queue) Close() {
	close(q.ch)
}
