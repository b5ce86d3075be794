// Package rpc implements the Agent Service's RPC surface (spec §4.8):
// ProcessMessage, StreamMessage, HealthCheck. Exposed as JSON-RPC 2.0 over
// HTTP (unary) and newline-delimited JSON (server-streaming) rather than
// grpc — grounded on hector's pkg/transport/jsonrpc_handler.go for the
// request/response envelope and error-code shape, and go-chi/chi (used
// throughout the pack, e.g. odvcencio-buckley's pkg/ipc/server.go) for
// routing.
package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/shuaitravel/agent/pkg/chunk"
	"github.com/shuaitravel/agent/pkg/llm"
	"github.com/shuaitravel/agent/pkg/memory"
	"github.com/shuaitravel/agent/pkg/mode"
	"github.com/shuaitravel/agent/pkg/obs"
)

// JSON-RPC 2.0 error codes (spec §7's taxonomy mapped onto the standard
// JSON-RPC code space).
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Request is the JSON-RPC 2.0 envelope spec §6 names MessageRequest's
// payload.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is the JSON-RPC 2.0 success/error envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MessageParams is the shared request shape for ProcessMessage and
// StreamMessage (spec §6's MessageRequest fields).
type MessageParams struct {
	SessionID string `json:"session_id"`
	UserInput string `json:"user_input"`
	ModelID   string `json:"model_id"`
	Mode      string `json:"mode"`
	Stream    bool   `json:"stream"`
}

// ReasoningSummary is the nested reasoning object in a ProcessMessage result.
type ReasoningSummary struct {
	Text       string   `json:"text"`
	TotalSteps int      `json:"total_steps"`
	ToolsUsed  []string `json:"tools_used"`
}

// MessageResult is spec §6's MessageResponse.
type MessageResult struct {
	Success   bool              `json:"success"`
	Answer    string            `json:"answer"`
	Reasoning ReasoningSummary  `json:"reasoning"`
	History   []HistoryStepView `json:"history"`
	Error     string            `json:"error,omitempty"`
}

// ThoughtView, DecisionView, PlannedStepView, ActionView, EvaluationView,
// and HistoryStepView are the wire projections of pkg/memory's equivalent
// types (spec §6's HistoryStep shape:
// {step,phase,thought{...},action{...},evaluation{...},timestamp}).
type ThoughtView struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	Phase      string        `json:"phase"`
	Content    string        `json:"content"`
	Confidence float64       `json:"confidence"`
	Decision   *DecisionView `json:"decision,omitempty"`
}

type DecisionView struct {
	Steps []PlannedStepView `json:"steps"`
}

type PlannedStepView struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

type ActionView struct {
	ID       string         `json:"id"`
	ToolName string         `json:"tool_name"`
	Status   string         `json:"status"`
	Duration float64        `json:"duration"`
	Result   map[string]any `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type EvaluationView struct {
	Success         bool    `json:"success"`
	Duration        float64 `json:"duration"`
	HasResult       bool    `json:"has_result"`
	ConfidenceDelta float64 `json:"confidence_delta"`
}

type HistoryStepView struct {
	Step       int             `json:"step"`
	Phase      string          `json:"phase"`
	Thought    ThoughtView     `json:"thought"`
	Action     *ActionView     `json:"action,omitempty"`
	Evaluation *EvaluationView `json:"evaluation,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

func toHistoryView(steps []memory.HistoryStep) []HistoryStepView {
	out := make([]HistoryStepView, 0, len(steps))
	for _, s := range steps {
		view := HistoryStepView{
			Step:      s.StepIndex,
			Phase:     string(s.Phase),
			Thought:   toThoughtView(s.Thought),
			Timestamp: s.Timestamp,
		}
		if s.Action != nil {
			view.Action = &ActionView{
				ID:       s.Action.ID,
				ToolName: s.Action.ToolName,
				Status:   string(s.Action.Status),
				Duration: s.Action.Duration().Seconds(),
				Result:   s.Action.Result,
				Error:    s.Action.Error,
			}
		}
		if s.Evaluation != nil {
			view.Evaluation = &EvaluationView{
				Success:         s.Evaluation.Success,
				Duration:        s.Evaluation.Duration.Seconds(),
				HasResult:       s.Evaluation.HasResult,
				ConfidenceDelta: s.Evaluation.ConfidenceDelta,
			}
		}
		out = append(out, view)
	}
	return out
}

func toThoughtView(t memory.Thought) ThoughtView {
	view := ThoughtView{
		ID:         t.ID,
		Type:       string(t.Type),
		Phase:      string(t.Phase),
		Content:    t.Content,
		Confidence: t.Confidence,
	}
	if t.Decision.HasTool() {
		steps := make([]PlannedStepView, 0, len(t.Decision.Steps))
		for _, ps := range t.Decision.Steps {
			steps = append(steps, PlannedStepView{Tool: ps.Tool, Params: ps.Params})
		}
		view.Decision = &DecisionView{Steps: steps}
	}
	return view
}

// StreamFrame is spec §6's StreamChunk: `{chunk_type, content, is_last}`.
type StreamFrame struct {
	ChunkType string `json:"chunk_type"`
	Content   string `json:"content"`
	IsLast    bool   `json:"is_last"`
}

// ModelResolver looks up the Dispatcher and context history to use for a
// given model_id / session_id pair. The RPC layer has no opinion on how
// sessions or models are stored — it only needs a function from request to
// collaborators.
type ModelResolver func(ctx context.Context, sessionID, modelID string) (*mode.Dispatcher, []llm.Message, error)

// Server exposes the Agent Service's RPC operations over HTTP.
type Server struct {
	resolve ModelResolver
	version string
	started time.Time
	metrics *obs.Metrics
}

// NewServer builds an RPC server. version is surfaced by HealthCheck.
func NewServer(resolve ModelResolver, version string) *Server {
	return &Server{resolve: resolve, version: version, started: time.Now()}
}

// WithMetrics attaches the process-wide Prometheus instruments. Optional —
// a Server built without it simply records nothing.
func (s *Server) WithMetrics(m *obs.Metrics) *Server {
	s.metrics = m
	return s
}

// Routes mounts the three operations onto a chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	if s.metrics != nil {
		r.Use(obs.HTTPMetricsMiddleware(s.metrics))
	}
	r.Post("/rpc", s.handleUnary)
	r.Post("/rpc/stream", s.handleStream)
	r.Get("/health", s.handleHealth)
	return r
}

func (s *Server) handleUnary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, codeParseError, "invalid JSON")
		return
	}
	if req.Method != "ProcessMessage" {
		writeRPCError(w, req.ID, codeMethodNotFound, "unknown method: "+req.Method)
		return
	}

	var params MessageParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeRPCError(w, req.ID, codeInvalidParams, "invalid params: "+err.Error())
		return
	}

	result := s.processMessage(r.Context(), params)
	_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (s *Server) processMessage(ctx context.Context, params MessageParams) MessageResult {
	dispatcher, history, err := s.resolve(ctx, params.SessionID, params.ModelID)
	if err != nil {
		return MessageResult{Success: false, Error: err.Error()}
	}

	var reasoning []string
	var finalAnswer string
	var outcome mode.Outcome

	outcome = dispatcher.Run(ctx, mode.Turn{
		SessionID: params.SessionID,
		UserInput: params.UserInput,
		History:   history,
		Mode:      mode.Mode(params.Mode),
	}, func(c chunk.Chunk) error {
		switch c.Type {
		case chunk.TypeReasoningChunk:
			reasoning = append(reasoning, c.Text)
		case chunk.TypeAnswerChunk:
			finalAnswer += c.Text
		}
		return nil
	})

	return MessageResult{
		Success: outcome.Success,
		Answer:  finalAnswer,
		Error:   outcome.Error,
		Reasoning: ReasoningSummary{
			Text:       joinLines(reasoning),
			TotalSteps: outcome.TotalSteps,
			ToolsUsed:  outcome.ToolsUsed,
		},
		History: toHistoryView(outcome.History),
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeNDJSONError(w, flusher, "invalid JSON")
		return
	}
	var params MessageParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeNDJSONError(w, flusher, "invalid params: "+err.Error())
		return
	}

	dispatcher, history, err := s.resolve(r.Context(), params.SessionID, params.ModelID)
	if err != nil {
		writeNDJSONError(w, flusher, err.Error())
		return
	}

	enc := json.NewEncoder(w)
	_ = dispatcher.Run(r.Context(), mode.Turn{
		SessionID: params.SessionID,
		UserInput: params.UserInput,
		History:   history,
		Mode:      mode.Mode(params.Mode),
	}, func(c chunk.Chunk) error {
		frame := toStreamFrame(c)
		if err := enc.Encode(frame); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
}

func toStreamFrame(c chunk.Chunk) StreamFrame {
	switch c.Type {
	case chunk.TypeReasoningStart:
		return StreamFrame{ChunkType: "thinking_start"}
	case chunk.TypeReasoningChunk:
		return StreamFrame{ChunkType: "thinking_chunk", Content: c.Text}
	case chunk.TypeReasoningEnd:
		return StreamFrame{ChunkType: "thinking_end"}
	case chunk.TypeAnswerStart:
		return StreamFrame{ChunkType: "answer_start"}
	case chunk.TypeAnswerChunk:
		return StreamFrame{ChunkType: "answer", Content: c.Text}
	case chunk.TypeError:
		return StreamFrame{ChunkType: "error", Content: c.Message}
	case chunk.TypeDone:
		return StreamFrame{ChunkType: "done", IsLast: true}
	default:
		return StreamFrame{ChunkType: string(c.Type)}
	}
}

// HealthStatus is HealthCheck's result.
type HealthStatus struct {
	Live    bool   `json:"live"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthStatus{Live: true, Version: s.version, Status: "serving"})
}

func writeRPCError(w http.ResponseWriter, id any, code int, message string) {
	_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message}})
}

func writeNDJSONError(w http.ResponseWriter, flusher http.Flusher, message string) {
	_ = json.NewEncoder(w).Encode(StreamFrame{ChunkType: "error", Content: message, IsLast: true})
	flusher.Flush()
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
