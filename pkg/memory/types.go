// Package memory holds the ReAct loop's per-task data model (spec §3) and
// its bounded Short-Term Memory (C3). Thought, Action, Evaluation, and
// HistoryStep live here — rather than beside the engines that produce them
// — so the Thought Engine, Evaluation Engine, and ReAct Loop can each
// depend on this one leaf package without an import cycle; ownership still
// follows the spec: the loop is the only writer, engines only ever see
// read-only values passed as arguments.
package memory

import (
	"time"

	"github.com/google/uuid"
)

// ThoughtType enumerates spec §3's Thought.type domain.
type ThoughtType string

const (
	ThoughtAnalysis   ThoughtType = "ANALYSIS"
	ThoughtPlanning   ThoughtType = "PLANNING"
	ThoughtInference  ThoughtType = "INFERENCE"
	ThoughtReflection ThoughtType = "REFLECTION"
	ThoughtDecision   ThoughtType = "DECISION"
)

// Phase enumerates spec §3's Thought.phase / HistoryStep.phase domain.
type Phase string

const (
	PhaseUnderstanding Phase = "UNDERSTANDING"
	PhasePlanning      Phase = "PLANNING"
	PhaseExecution     Phase = "EXECUTION"
	PhaseGeneration    Phase = "GENERATION"
)

// PlannedStep is one entry of a Decision's ordered tool-call plan.
type PlannedStep struct {
	Tool   string
	Params map[string]any
}

// Decision is the structured payload a Thought may carry, referencing a
// tool call (or an ordered list of them, for the initial PLANNING thought).
type Decision struct {
	Steps []PlannedStep
}

// HasTool reports whether the decision resolves to at least one tool call.
func (d *Decision) HasTool() bool {
	return d != nil && len(d.Steps) > 0
}

// Thought is an immutable reasoning artifact produced by the Thought
// Engine (spec §3). Never mutated after emission.
type Thought struct {
	ID         string
	Type       ThoughtType
	Phase      Phase
	Content    string
	Confidence float64
	Decision   *Decision
}

// NewThought stamps a fresh unique id.
func NewThought(t ThoughtType, phase Phase, content string, confidence float64, decision *Decision) Thought {
	return Thought{
		ID:         uuid.NewString(),
		Type:       t,
		Phase:      phase,
		Content:    content,
		Confidence: confidence,
		Decision:   decision,
	}
}

// ActionStatus enumerates spec §3's Action state machine:
// PENDING -> RUNNING -> {SUCCESS, FAILED, TIMEOUT}; SKIPPED is terminal
// from PENDING only.
type ActionStatus string

const (
	ActionPending ActionStatus = "PENDING"
	ActionRunning ActionStatus = "RUNNING"
	ActionSuccess ActionStatus = "SUCCESS"
	ActionFailed  ActionStatus = "FAILED"
	ActionTimeout ActionStatus = "TIMEOUT"
	ActionSkipped ActionStatus = "SKIPPED"
)

// terminalActionStatuses are states an Action cannot leave.
var terminalActionStatuses = map[ActionStatus]bool{
	ActionSuccess: true,
	ActionFailed:  true,
	ActionTimeout: true,
	ActionSkipped: true,
}

// Action is the mutable record of one tool invocation attempt, owned
// exclusively by the ReAct Loop while in flight; once appended to a
// HistoryStep it is never mutated again.
type Action struct {
	ID        string
	ToolName  string
	Params    map[string]any
	Status    ActionStatus
	Result    map[string]any
	Error     string
	StartedAt time.Time
	EndedAt   time.Time
}

// NewAction creates a PENDING action for the given tool call.
func NewAction(toolName string, params map[string]any) *Action {
	return &Action{
		ID:       uuid.NewString(),
		ToolName: toolName,
		Params:   params,
		Status:   ActionPending,
	}
}

// Start transitions PENDING -> RUNNING and records the start time. It is a
// programming error to call Start twice; callers own single-invocation
// discipline per spec §4.1 (the registry performs no retry).
func (a *Action) Start() {
	a.Status = ActionRunning
	a.StartedAt = time.Now()
}

// Finish transitions RUNNING -> a terminal status and records the end time
// and duration-relevant timestamp. Calling Finish from any state other than
// RUNNING (or PENDING, for the SKIPPED shortcut) is a contract violation.
func (a *Action) Finish(status ActionStatus, result map[string]any, errMsg string) {
	a.Status = status
	a.Result = result
	a.Error = errMsg
	a.EndedAt = time.Now()
}

// Skip marks a PENDING action SKIPPED without ever running it (spec §4.5's
// dedup rule for repeated (tool,params) pairs within one plan).
func (a *Action) Skip() {
	a.Status = ActionSkipped
	a.EndedAt = time.Now()
}

// Duration is zero until the action reaches a terminal state.
func (a *Action) Duration() time.Duration {
	if a.StartedAt.IsZero() || a.EndedAt.IsZero() {
		return 0
	}
	return a.EndedAt.Sub(a.StartedAt)
}

// IsTerminal reports whether the action has left RUNNING for good.
func (a *Action) IsTerminal() bool {
	return terminalActionStatuses[a.Status]
}

// Evaluation is purely derived from an Action (spec §3) — the Evaluation
// Engine never mutates the Action it evaluates.
type Evaluation struct {
	Success         bool
	Duration        time.Duration
	HasResult       bool
	ConfidenceDelta float64
}

// Observation is the snapshot fed into each Think step (spec §3).
type Observation struct {
	StepIndex      int
	History        []HistoryStep
	LastAction     *Action
	ElapsedSoFar   time.Duration
}

// HistoryStep is the append-only record of one loop iteration.
type HistoryStep struct {
	StepIndex  int
	Phase      Phase
	Thought    Thought
	Action     *Action
	Evaluation *Evaluation
	Timestamp  time.Time
}
