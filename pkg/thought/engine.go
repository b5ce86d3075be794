// Package thought implements the Thought Engine: the component that turns
// an Observation (or a raw user turn) into a structured memory.Thought.
// Grounded on hector's pkg/reasoning — in particular reflection.go's
// structured-output-with-heuristic-fallback shape (AnalyzeToolResults) and
// thinking.go's per-step narration — generalized from hector's chain-of-
// thought agent loop to the spec's closed ANALYSIS/PLANNING/INFERENCE/
// REFLECTION/DECISION thought types.
package thought

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shuaitravel/agent/pkg/llm"
	"github.com/shuaitravel/agent/pkg/memory"
	"github.com/shuaitravel/agent/pkg/tool"
)

// Engine produces Thought values. A nil Capability is permitted: every
// LLM-backed entry point falls back to a rule-based result when either the
// capability is absent or the call itself fails, per spec §4.3's fail-open
// requirement.
type Engine struct {
	llm llm.Capability
}

// New creates a Thought Engine bound to an optional LLM capability.
func New(capability llm.Capability) *Engine {
	return &Engine{llm: capability}
}

type taskAnalysis struct {
	Intent   Intent
	Entities map[string]string
}

// AnalyzeTask is the loop's step-0 entry point: classify the user's turn
// into a coarse intent and extract a handful of surface entities, then wrap
// the result in an ANALYSIS thought at phase UNDERSTANDING.
func (e *Engine) AnalyzeTask(ctx context.Context, userInput string, contextMessages []llm.Message) memory.Thought {
	analysis := e.analyzeIntent(ctx, userInput, contextMessages)

	content := fmt.Sprintf("intent=%s", analysis.Intent)
	if len(analysis.Entities) > 0 {
		parts := make([]string, 0, len(analysis.Entities))
		for k, v := range analysis.Entities {
			parts = append(parts, fmt.Sprintf("%s=%s", k, v))
		}
		content = fmt.Sprintf("%s entities={%s}", content, strings.Join(parts, ", "))
	}

	return memory.NewThought(memory.ThoughtAnalysis, memory.PhaseUnderstanding, content, 0.8, nil)
}

// analyzeIntent tries a single blocking LLM round with a task-analysis
// prompt, and falls back to the rule-based classifier on any failure —
// including a response that fails to parse as the expected JSON shape.
func (e *Engine) analyzeIntent(ctx context.Context, userInput string, contextMessages []llm.Message) taskAnalysis {
	if e.llm == nil {
		return taskAnalysis{Intent: classifyRuleBased(userInput)}
	}

	prompt := fmt.Sprintf(`Classify the user's request into exactly one of:
city_recommendation, attraction_query, route_planning, preference_update, general_chat.

Respond with JSON only: {"intent": "<one of the above>", "entities": {"city": "...", "days": "..."}}.

User request: %s`, userInput)

	messages := append(append([]llm.Message{}, contextMessages...), llm.Message{Role: "user", Content: prompt})
	resp, err := e.llm.Generate(ctx, messages, nil)
	if err != nil {
		return taskAnalysis{Intent: classifyRuleBased(userInput)}
	}

	var parsed struct {
		Intent   string            `json:"intent"`
		Entities map[string]string `json:"entities"`
	}
	if jsonErr := json.Unmarshal([]byte(extractJSON(resp.Text)), &parsed); jsonErr != nil {
		return taskAnalysis{Intent: classifyRuleBased(userInput)}
	}

	intent := Intent(parsed.Intent)
	switch intent {
	case IntentCityRecommendation, IntentAttractionQuery, IntentRoutePlanning, IntentPreferenceUpdate, IntentGeneralChat:
		return taskAnalysis{Intent: intent, Entities: parsed.Entities}
	default:
		return taskAnalysis{Intent: classifyRuleBased(userInput), Entities: parsed.Entities}
	}
}

// PlanActions produces a PLANNING thought carrying an ordered list of
// proposed (tool, params) steps, derived heuristically from the analysis's
// intent and the tools currently advertised by the registry. Confidence
// starts at 0.7, per spec §4.3.
func (e *Engine) PlanActions(analysisThought memory.Thought, registryView []tool.Descriptor, userInput string, state map[string]string) memory.Thought {
	available := make(map[string]bool, len(registryView))
	for _, d := range registryView {
		available[d.Name] = true
	}

	intent := extractIntent(analysisThought.Content)
	steps := planForIntent(intent, userInput, state, available)

	var decision *memory.Decision
	if len(steps) > 0 {
		decision = &memory.Decision{Steps: steps}
	}

	content := fmt.Sprintf("planned %d step(s) for intent=%s", len(steps), intent)
	return memory.NewThought(memory.ThoughtPlanning, memory.PhasePlanning, content, 0.7, decision)
}

// extractIntent pulls the "intent=..." token back out of an ANALYSIS
// thought's content — a small concession to keeping Thought a plain string
// payload rather than threading a second typed channel through the loop.
func extractIntent(analysisContent string) Intent {
	const prefix = "intent="
	idx := strings.Index(analysisContent, prefix)
	if idx < 0 {
		return IntentGeneralChat
	}
	rest := analysisContent[idx+len(prefix):]
	if sp := strings.IndexAny(rest, " \t"); sp >= 0 {
		rest = rest[:sp]
	}
	return Intent(rest)
}

func planForIntent(intent Intent, userInput string, state map[string]string, available map[string]bool) []memory.PlannedStep {
	switch intent {
	case IntentCityRecommendation:
		if available["city_search"] {
			return []memory.PlannedStep{{Tool: "city_search", Params: map[string]any{"interests": splitInterests(userInput, state)}}}
		}
	case IntentAttractionQuery:
		if available["attraction_query"] {
			return []memory.PlannedStep{{Tool: "attraction_query", Params: map[string]any{"city": state["city"]}}}
		}
	case IntentRoutePlanning:
		if available["route_planner"] {
			return []memory.PlannedStep{{Tool: "route_planner", Params: map[string]any{"city": state["city"], "days": 3}}}
		}
	case IntentPreferenceUpdate:
		if available["preference_update"] {
			return []memory.PlannedStep{{Tool: "preference_update", Params: map[string]any{"key": "note", "value": userInput}}}
		}
	}
	return nil
}

// knownInterestTags is the travel-interest vocabulary recognized inside a
// raw utterance when no structured preference has been recorded yet via
// preference_update. Kept in sync with domain's city catalog tags.
var knownInterestTags = []string{"美食", "熊猫", "休闲", "历史", "古迹", "购物", "自然"}

func splitInterests(userInput string, state map[string]string) []string {
	if v, ok := state["interests"]; ok && v != "" {
		return strings.Split(v, ",")
	}
	var found []string
	for _, tag := range knownInterestTags {
		if strings.Contains(userInput, tag) {
			found = append(found, tag)
		}
	}
	if len(found) > 0 {
		return found
	}
	return []string{userInput}
}

// Infer produces an INFERENCE thought at phase EXECUTION summarizing the
// last observation, or a REFLECTION thought at the same phase when the last
// action FAILED or TIMED OUT — used on every step after the first, before
// the stop check decides whether to continue.
func (e *Engine) Infer(obs memory.Observation) memory.Thought {
	confidence := 0.6
	content := "no prior action to summarize"
	if obs.LastAction != nil {
		confidence = confidenceFor(obs.LastAction)
		content = fmt.Sprintf("last action %s on %s: status=%s", obs.LastAction.ID, obs.LastAction.ToolName, obs.LastAction.Status)
		if obs.LastAction.Status == memory.ActionFailed || obs.LastAction.Status == memory.ActionTimeout {
			return memory.NewThought(memory.ThoughtReflection, memory.PhaseExecution,
				fmt.Sprintf("%s failed (%s); revising approach", obs.LastAction.ToolName, obs.LastAction.Error), confidence, nil)
		}
	}
	return memory.NewThought(memory.ThoughtInference, memory.PhaseExecution, content, confidence, nil)
}

func confidenceFor(a *memory.Action) float64 {
	switch a.Status {
	case memory.ActionSuccess:
		return 0.85
	case memory.ActionFailed, memory.ActionTimeout:
		return 0.4
	default:
		return 0.6
	}
}

// Decide produces the terminal DECISION thought at phase GENERATION that
// marks the loop ready to answer.
func (e *Engine) Decide(obs memory.Observation) memory.Thought {
	return memory.NewThought(memory.ThoughtDecision, memory.PhaseGeneration,
		fmt.Sprintf("ready to answer after %d step(s)", obs.StepIndex+1), 0.95, nil)
}

// extractJSON trims any leading/trailing prose or code fences an LLM may
// wrap its JSON response in, returning the first {...} block found.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
