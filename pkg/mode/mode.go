// Package mode implements the Mode Dispatcher (spec §4.6): selecting one of
// Direct / ReAct / Plan execution strategies per user turn and translating
// whatever that strategy produces into the Chunk event stream. Grounded on
// hector's pkg/reasoning/strategy.go interface shape (a named strategy
// behind a uniform Prepare/Execute contract) and chain_of_thought_strategy.go
// for the streaming-answer-after-reasoning pattern.
package mode

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shuaitravel/agent/pkg/chunk"
	"github.com/shuaitravel/agent/pkg/llm"
	"github.com/shuaitravel/agent/pkg/memory"
	"github.com/shuaitravel/agent/pkg/react"
	"github.com/shuaitravel/agent/pkg/thought"
	"github.com/shuaitravel/agent/pkg/tool"
)

// Mode names the client-selectable execution strategy.
type Mode string

const (
	ModeDirect Mode = "direct"
	ModeReact  Mode = "react"
	ModePlan   Mode = "plan"
)

// Turn is one user message and the context needed to answer it.
type Turn struct {
	SessionID string
	UserInput string
	History   []llm.Message
	Mode      Mode
	State     map[string]string
}

// Outcome summarizes a completed turn for the RPC layer's non-streaming
// ProcessMessage response.
type Outcome struct {
	Success      bool
	Answer       string
	ReasoningLog string
	TotalSteps   int
	ToolsUsed    []string
	Error        string
	History      []memory.HistoryStep
}

// Dispatcher selects and runs a strategy.
type Dispatcher struct {
	capability llm.Capability
	registry   *tool.Registry
	thoughts   *thought.Engine
	loop       *react.Loop
	maxSteps   int
}

// New builds a Dispatcher. capability is the default model used for
// Direct-mode calls and Plan/ReAct final-answer synthesis; per-turn model
// selection (model_id) is resolved by the caller before constructing the
// Turn, matching spec §6's per-request model_id field.
func New(capability llm.Capability, registry *tool.Registry, thoughts *thought.Engine, loop *react.Loop, maxSteps int) *Dispatcher {
	return &Dispatcher{capability: capability, registry: registry, thoughts: thoughts, loop: loop, maxSteps: maxSteps}
}

// Run dispatches to the requested strategy, emitting exactly one
// session_id first, zero or more reasoning/answer events, and exactly one
// terminal done. The only fallback between modes is Plan -> ReAct, taken
// when no capability is configured, when the planning call fails, or when
// its reply does not parse as a plan with at least one step.
func (d *Dispatcher) Run(ctx context.Context, turn Turn, emit chunk.Emitter) Outcome {
	if err := emit(chunk.SessionID(turn.SessionID)); err != nil {
		return Outcome{Success: false, Error: err.Error()}
	}

	if strings.TrimSpace(turn.UserInput) == "" {
		_ = emit(chunk.Error("user input must not be empty"))
		_ = emit(chunk.Done(chunk.Stats{}))
		return Outcome{Success: false, Error: "user input must not be empty"}
	}

	switch turn.Mode {
	case ModePlan:
		return d.runPlan(ctx, turn, emit)
	case ModeDirect:
		return d.runDirect(ctx, turn, emit)
	default:
		return d.runReact(ctx, turn, emit)
	}
}

func (d *Dispatcher) runDirect(ctx context.Context, turn Turn, emit chunk.Emitter) Outcome {
	if d.capability == nil {
		_ = emit(chunk.Error("no model configured"))
		_ = emit(chunk.Done(chunk.Stats{}))
		return Outcome{Success: false, Error: "no model configured"}
	}

	_ = emit(chunk.ReasoningStart())
	_ = emit(chunk.ReasoningChunk("answering directly, no tool use"))
	_ = emit(chunk.ReasoningEnd())

	messages := append(append([]llm.Message{}, turn.History...), llm.Message{Role: "user", Content: turn.UserInput})
	stream, err := d.capability.GenerateStreaming(ctx, messages, nil)
	if err != nil {
		_ = emit(chunk.Error(err.Error()))
		_ = emit(chunk.Done(chunk.Stats{}))
		return Outcome{Success: false, Error: err.Error()}
	}

	_ = emit(chunk.AnswerStart())
	var answer strings.Builder
	for sc := range stream {
		if sc.Err != nil {
			_ = emit(chunk.Error(sc.Err.Error()))
			_ = emit(chunk.Done(chunk.Stats{}))
			return Outcome{Success: false, Error: sc.Err.Error()}
		}
		if sc.Text != "" {
			answer.WriteString(sc.Text)
			_ = emit(chunk.AnswerChunk(sc.Text))
		}
		if sc.Done {
			break
		}
	}

	_ = emit(chunk.Done(chunk.Stats{TotalSteps: 0, Success: true}))
	return Outcome{Success: true, Answer: answer.String()}
}

func (d *Dispatcher) runReact(ctx context.Context, turn Turn, emit chunk.Emitter) Outcome {
	var reasoning strings.Builder
	reasoningOpen := false

	think := func(trace string, _ time.Duration) {
		if !reasoningOpen {
			_ = emit(chunk.ReasoningStart())
			reasoningOpen = true
		}
		reasoning.WriteString(trace)
		reasoning.WriteString("\n")
		_ = emit(chunk.ReasoningChunk(trace))
	}

	result := d.loop.Run(ctx, react.Config{MaxSteps: d.maxSteps}, turn.UserInput, turn.History, turn.State, think)

	if reasoningOpen {
		_ = emit(chunk.ReasoningEnd())
	}

	answer := result.DirectAnswer
	if answer == "" {
		answer = d.synthesize(ctx, turn, result)
	}

	_ = emit(chunk.AnswerStart())
	_ = emit(chunk.AnswerChunk(answer))

	success := result.Status == react.StatusCompleted
	_ = emit(chunk.Done(chunk.Stats{
		TotalSteps: result.StepsTaken,
		ToolsUsed:  result.ToolsUsed,
		Success:    success,
	}))

	return Outcome{
		Success:      success,
		Answer:       answer,
		ReasoningLog: reasoning.String(),
		TotalSteps:   result.StepsTaken,
		ToolsUsed:    result.ToolsUsed,
		History:      result.History,
	}
}

type planStep struct {
	Step        int            `json:"step"`
	Action      string         `json:"action"`
	Params      map[string]any `json:"params"`
	Description string         `json:"description"`
	Phase       string         `json:"phase"`
}

type jsonPlan struct {
	Goal  string     `json:"goal"`
	Steps []planStep `json:"steps"`
}

func (d *Dispatcher) runPlan(ctx context.Context, turn Turn, emit chunk.Emitter) Outcome {
	if d.capability == nil {
		return d.runReact(ctx, turn, emit)
	}

	prompt := fmt.Sprintf(`Produce a JSON execution plan for the request below, as
{"goal": "...", "steps": [{"step": 1, "action": "<tool name>", "params": {...}, "description": "...", "phase": "EXECUTION"}]}.
Use only these tools: %s.

Request: %s`, strings.Join(toolNames(d.registry), ", "), turn.UserInput)

	resp, err := d.capability.Generate(ctx, append(append([]llm.Message{}, turn.History...), llm.Message{Role: "user", Content: prompt}), nil)
	if err != nil {
		return d.runReact(ctx, turn, emit)
	}

	var plan jsonPlan
	if jsonErr := json.Unmarshal([]byte(extractJSONObject(resp.Text)), &plan); jsonErr != nil || len(plan.Steps) == 0 {
		return d.runReact(ctx, turn, emit)
	}

	_ = emit(chunk.ReasoningStart())
	_ = emit(chunk.ReasoningChunk(fmt.Sprintf("plan: %s (%d step(s))", plan.Goal, len(plan.Steps))))

	var toolsUsed []string
	var results []string
	attempted := map[string]bool{}
	for _, step := range plan.Steps {
		key := fmt.Sprintf("%s:%v", step.Action, step.Params)
		_ = emit(chunk.ReasoningChunk(fmt.Sprintf("step %d (%s): %s", step.Step, step.Phase, step.Description)))

		if attempted[key] {
			_ = emit(chunk.ReasoningChunk(fmt.Sprintf("step %d skipped: duplicate of an earlier step", step.Step)))
			continue
		}
		attempted[key] = true

		outcome := d.registry.Execute(ctx, step.Action, step.Params)
		if outcome.Success {
			toolsUsed = append(toolsUsed, step.Action)
			results = append(results, fmt.Sprintf("%s -> %v", step.Action, outcome.Value))
		} else {
			results = append(results, fmt.Sprintf("%s failed: %s", step.Action, outcome.Message))
		}
	}
	_ = emit(chunk.ReasoningEnd())

	answer := d.synthesizeFromResults(ctx, turn, plan.Goal, results)

	_ = emit(chunk.AnswerStart())
	_ = emit(chunk.AnswerChunk(answer))
	_ = emit(chunk.Done(chunk.Stats{TotalSteps: len(plan.Steps), ToolsUsed: toolsUsed, Success: true}))

	return Outcome{Success: true, Answer: answer, TotalSteps: len(plan.Steps), ToolsUsed: toolsUsed}
}

func toolNames(r *tool.Registry) []string {
	descs := r.List()
	out := make([]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.Name)
	}
	return out
}

func (d *Dispatcher) synthesize(ctx context.Context, turn Turn, result react.Result) string {
	if d.capability == nil {
		return fallbackAnswer(result.History)
	}
	summary := historySummary(result.History)
	messages := append(append([]llm.Message{}, turn.History...), llm.Message{
		Role:    "user",
		Content: fmt.Sprintf("User asked: %s\n\nTool findings:\n%s\n\nWrite the final answer for the user.", turn.UserInput, summary),
	})
	resp, err := d.capability.Generate(ctx, messages, nil)
	if err != nil {
		return fallbackAnswer(result.History)
	}
	return resp.Text
}

func (d *Dispatcher) synthesizeFromResults(ctx context.Context, turn Turn, goal string, results []string) string {
	if d.capability == nil {
		return strings.Join(results, "\n")
	}
	messages := append(append([]llm.Message{}, turn.History...), llm.Message{
		Role:    "user",
		Content: fmt.Sprintf("Goal: %s\nUser asked: %s\n\nStep results:\n%s\n\nWrite the final answer for the user.", goal, turn.UserInput, strings.Join(results, "\n")),
	})
	resp, err := d.capability.Generate(ctx, messages, nil)
	if err != nil {
		return strings.Join(results, "\n")
	}
	return resp.Text
}

func historySummary(history []memory.HistoryStep) string {
	var b strings.Builder
	for _, step := range history {
		if step.Action == nil || step.Action.Status != memory.ActionSuccess {
			continue
		}
		fmt.Fprintf(&b, "%s -> %v\n", step.Action.ToolName, step.Action.Result)
	}
	if b.Len() == 0 {
		return "no tool produced a usable result"
	}
	return b.String()
}

func fallbackAnswer(history []memory.HistoryStep) string {
	summary := historySummary(history)
	if summary == "no tool produced a usable result" {
		return "I wasn't able to find a confident answer with the tools available."
	}
	return summary
}

func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
