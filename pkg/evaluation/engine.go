// Package evaluation implements the Evaluation Engine (spec §4.4): a
// stateless function from memory.Action to memory.Evaluation. Grounded on
// hector's pkg/reasoning/reflection.go fallbackAnalysis. Success is derived
// from the Action's status together with whether its result is non-empty;
// the result's contents are not inspected further.
package evaluation

import "github.com/shuaitravel/agent/pkg/memory"

// Engine evaluates Actions. It holds no state and never mutates the Action
// it evaluates.
type Engine struct{}

// New creates an Evaluation Engine.
func New() *Engine {
	return &Engine{}
}

// Evaluate derives an Evaluation from a terminal Action. Success iff status
// is SUCCESS and the result is non-empty. ConfidenceDelta nudges the
// loop's running confidence: positive on success, negative on failure or
// timeout, zero for a skipped action (it was never attempted).
func (e *Engine) Evaluate(a *memory.Action) memory.Evaluation {
	if a == nil {
		return memory.Evaluation{}
	}

	hasResult := len(a.Result) > 0
	success := a.Status == memory.ActionSuccess && hasResult

	var delta float64
	switch {
	case success:
		delta = 0.1
	case a.Status == memory.ActionFailed, a.Status == memory.ActionTimeout:
		delta = -0.15
	case a.Status == memory.ActionSkipped:
		delta = 0
	}

	return memory.Evaluation{
		Success:         success,
		Duration:        a.Duration(),
		HasResult:       hasResult,
		ConfidenceDelta: delta,
	}
}
