// Package react implements the ReAct Loop (spec §4.5): the bounded
// Observe/Think/Act/Evaluate state machine stitching the Tool Registry,
// Short-Term Memory, Thought Engine, and Evaluation Engine together.
// Grounded on hector's pkg/reasoning/chain_of_thought_strategy.go for the
// iteration shape and thinking.go for the per-step narration format.
package react

import (
	"context"
	"fmt"
	"time"

	"github.com/shuaitravel/agent/pkg/evaluation"
	"github.com/shuaitravel/agent/pkg/llm"
	"github.com/shuaitravel/agent/pkg/memory"
	"github.com/shuaitravel/agent/pkg/obs"
	"github.com/shuaitravel/agent/pkg/thought"
	"github.com/shuaitravel/agent/pkg/tool"
)

// Status is the loop's terminal outcome.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusError     Status = "ERROR"
)

// ThinkFunc is the thinking callback invoked once per recorded HistoryStep
// with a human-readable trace of that step and the elapsed time so far.
type ThinkFunc func(trace string, elapsed time.Duration)

// Config bounds one invocation of the loop.
type Config struct {
	// MaxSteps is the hard iteration ceiling. Zero means the spec default
	// of 10.
	MaxSteps int
	// TaskDeadline bounds total wall-clock time across all iterations.
	// Zero means no deadline beyond ctx's own.
	TaskDeadline time.Duration
}

func (c Config) maxSteps() int {
	if c.MaxSteps <= 0 {
		return 10
	}
	return c.MaxSteps
}

// Result is what the loop hands back to its caller (the Mode Dispatcher).
type Result struct {
	Status Status
	// DirectAnswer is populated only when planning yielded zero steps and
	// the loop delegated straight to the LLM capability (spec §4.5 edge
	// case). Otherwise the Mode Dispatcher performs its own final
	// synthesis call over History.
	DirectAnswer string
	History      []memory.HistoryStep
	ToolsUsed    []string
	StepsTaken   int
	DeadlineHit  bool
}

// Loop is the stateless driver; it holds only its collaborators. A fresh
// Short-Term Memory is created per Run call, matching spec §4.2's "not
// shared across concurrent tasks".
type Loop struct {
	registry   *tool.Registry
	thoughts   *thought.Engine
	evaluator  *evaluation.Engine
	capability llm.Capability
	metrics    *obs.Metrics
}

// New builds a Loop. capability may be nil, in which case the zero-steps
// direct-answer shortcut makes no LLM call and leaves Result.DirectAnswer
// empty.
func New(registry *tool.Registry, thoughts *thought.Engine, evaluator *evaluation.Engine, capability llm.Capability) *Loop {
	return &Loop{registry: registry, thoughts: thoughts, evaluator: evaluator, capability: capability}
}

// WithMetrics attaches the process-wide Prometheus instruments. Optional —
// a Loop built without it simply records nothing.
func (l *Loop) WithMetrics(m *obs.Metrics) *Loop {
	l.metrics = m
	return l
}

// Run drives the loop to completion for one user turn.
func (l *Loop) Run(ctx context.Context, cfg Config, userInput string, contextMessages []llm.Message, state map[string]string, think ThinkFunc) Result {
	if cfg.TaskDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.TaskDeadline)
		defer cancel()
	}

	mem := memory.New()
	start := time.Now()
	maxSteps := cfg.maxSteps()
	emit := func(th memory.Thought, phase memory.Phase) {
		if think != nil {
			think(formatTrace(phase, th), time.Since(start))
		}
	}

	terminalTools := make(map[string]bool)
	for _, name := range l.registry.TerminalTools() {
		terminalTools[name] = true
	}

	var planQueue []plannedAttempt
	stopSatisfied := false

	for step := 0; step < maxSteps; step++ {
		if ctx.Err() != nil {
			return l.finalize(StatusCompleted, mem, step, true)
		}

		obs := memory.Observation{
			StepIndex:    step,
			History:      mem.View(),
			LastAction:   mem.LastAction(),
			ElapsedSoFar: time.Since(start),
		}

		if step == 0 {
			analysis := l.thoughts.AnalyzeTask(ctx, userInput, contextMessages)
			mem.Record(memory.HistoryStep{StepIndex: step, Phase: memory.PhaseUnderstanding, Thought: analysis, Timestamp: time.Now()})
			emit(analysis, memory.PhaseUnderstanding)

			planning := l.thoughts.PlanActions(analysis, l.registry.List(), userInput, state)
			planQueue = dedupeSteps(planning)

			if len(planQueue) == 0 {
				generation := l.thoughts.Decide(obs)
				mem.Record(memory.HistoryStep{StepIndex: step, Phase: memory.PhaseGeneration, Thought: generation, Timestamp: time.Now()})
				emit(generation, memory.PhaseGeneration)
				answer := l.directAnswer(ctx, userInput, contextMessages)
				return Result{
					Status:       StatusCompleted,
					DirectAnswer: answer,
					History:      mem.View(),
					ToolsUsed:    mem.ToolsUsed(),
					StepsTaken:   step + 1,
				}
			}

			action := l.act(ctx, mem, &planQueue)
			evalResult := l.evaluator.Evaluate(action)
			mem.Record(memory.HistoryStep{StepIndex: step, Phase: memory.PhasePlanning, Thought: planning, Action: action, Evaluation: &evalResult, Timestamp: time.Now()})
			emit(planning, memory.PhasePlanning)

			stopSatisfied = l.computeStop(action, planning, step, maxSteps, terminalTools, len(planQueue) == 0)
			continue
		}

		if stopSatisfied {
			decision := l.thoughts.Decide(obs)
			mem.Record(memory.HistoryStep{StepIndex: step, Phase: memory.PhaseGeneration, Thought: decision, Timestamp: time.Now()})
			emit(decision, memory.PhaseGeneration)
			return l.finalize(StatusCompleted, mem, step+1, false)
		}

		inference := l.thoughts.Infer(obs)
		phase := memory.PhaseExecution

		action := l.act(ctx, mem, &planQueue)
		evalResult := l.evaluator.Evaluate(action)
		mem.Record(memory.HistoryStep{StepIndex: step, Phase: phase, Thought: inference, Action: action, Evaluation: &evalResult, Timestamp: time.Now()})
		emit(inference, phase)

		stopSatisfied = l.computeStop(action, inference, step, maxSteps, terminalTools, len(planQueue) == 0)
	}

	return l.finalize(StatusCompleted, mem, maxSteps, false)
}

// plannedAttempt pairs a PlannedStep with whether it was coalesced away by
// the within-plan dedup rule.
type plannedAttempt struct {
	step    memory.PlannedStep
	skipped bool
}

// dedupeSteps applies spec §4.5's "two or more planned steps target the
// same tool with identical parameters -> all but first SKIPPED" rule to a
// PLANNING thought's Decision.
func dedupeSteps(planning memory.Thought) []plannedAttempt {
	if !planning.Decision.HasTool() {
		return nil
	}
	seen := make(map[string]bool)
	out := make([]plannedAttempt, 0, len(planning.Decision.Steps))
	for _, s := range planning.Decision.Steps {
		key := attemptSignature(s.Tool, s.Params)
		out = append(out, plannedAttempt{step: s, skipped: seen[key]})
		seen[key] = true
	}
	return out
}

func attemptSignature(toolName string, params map[string]any) string {
	return fmt.Sprintf("%s:%v", toolName, params)
}

// act pops the next planned step off the queue and executes it, or
// synthesizes a SKIPPED action if the queue is empty or the thought carried
// no tool call at all.
func (l *Loop) act(ctx context.Context, mem *memory.ShortTermMemory, queue *[]plannedAttempt) *memory.Action {
	if len(*queue) == 0 {
		a := memory.NewAction("", nil)
		a.Skip()
		return a
	}

	next := (*queue)[0]
	*queue = (*queue)[1:]

	action := memory.NewAction(next.step.Tool, next.step.Params)
	if next.skipped || mem.WasAttempted(next.step.Tool, next.step.Params) {
		action.Skip()
		return action
	}

	action.Start()
	result := l.registry.Execute(ctx, next.step.Tool, next.step.Params)
	switch {
	case result.Success:
		action.Finish(memory.ActionSuccess, result.Value, "")
	case result.Kind == tool.FailureTimeout:
		action.Finish(memory.ActionTimeout, nil, result.Message)
	default:
		action.Finish(memory.ActionFailed, nil, result.Message)
	}
	return action
}

// computeStop implements spec §4.5's stop predicate.
func (l *Loop) computeStop(action *memory.Action, th memory.Thought, step, maxSteps int, terminalTools map[string]bool, queueEmpty bool) bool {
	if action != nil && action.Status == memory.ActionSuccess && terminalTools[action.ToolName] {
		return true
	}
	if th.Confidence > 0.9 && th.Decision.HasTool() {
		return true
	}
	if step >= maxSteps-1 {
		return true
	}
	return queueEmpty && action != nil && action.Status == memory.ActionSuccess
}

func (l *Loop) directAnswer(ctx context.Context, userInput string, contextMessages []llm.Message) string {
	if l.capability == nil {
		return ""
	}
	messages := append(append([]llm.Message{}, contextMessages...), llm.Message{Role: "user", Content: userInput})
	resp, err := l.capability.Generate(ctx, messages, nil)
	if err != nil {
		return ""
	}
	return resp.Text
}

func (l *Loop) finalize(status Status, mem *memory.ShortTermMemory, stepsTaken int, deadlineHit bool) Result {
	if mem.SuccessfulSteps() == 0 && mem.StepsCompleted() > 0 {
		status = StatusError
	}
	if l.metrics != nil {
		l.metrics.LoopOutcomes.WithLabelValues(string(status)).Inc()
		l.metrics.LoopSteps.WithLabelValues(string(status)).Observe(float64(stepsTaken))
	}
	return Result{
		Status:      status,
		History:     mem.View(),
		ToolsUsed:   mem.ToolsUsed(),
		StepsTaken:  stepsTaken,
		DeadlineHit: deadlineHit,
	}
}

func formatTrace(phase memory.Phase, th memory.Thought) string {
	return fmt.Sprintf("[%s] %s (%s, confidence=%.2f)", phase, th.Content, th.Type, th.Confidence)
}
