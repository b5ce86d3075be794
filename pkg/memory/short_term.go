package memory

import "sync"

// ShortTermMemory is the bounded, append-only sequence of HistoryStep
// entries for the current task (spec §4.2, C3). Not shared across
// concurrent tasks — one instance per ReAct Loop invocation — but guarded
// with a mutex anyway since the loop's emit callback may read it from a
// different goroutine than the one appending (e.g. a metrics exporter).
type ShortTermMemory struct {
	mu    sync.RWMutex
	steps []HistoryStep
}

// New creates an empty ShortTermMemory for a single task.
func New() *ShortTermMemory {
	return &ShortTermMemory{}
}

// Record appends a HistoryStep. There is no eviction during a task — the
// spec bounds task length via max_steps, not memory size.
func (m *ShortTermMemory) Record(step HistoryStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step)
}

// View returns a read-only copy of the recorded steps so far.
func (m *ShortTermMemory) View() []HistoryStep {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]HistoryStep, len(m.steps))
	copy(out, m.steps)
	return out
}

// LastAction returns the most recently recorded non-nil Action, if any.
func (m *ShortTermMemory) LastAction() *Action {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.steps) - 1; i >= 0; i-- {
		if m.steps[i].Action != nil {
			return m.steps[i].Action
		}
	}
	return nil
}

// StepsCompleted is the number of recorded HistoryStep entries.
func (m *ShortTermMemory) StepsCompleted() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.steps)
}

// ToolsUsed returns the distinct, non-skipped tool names invoked so far, in
// first-use order.
func (m *ShortTermMemory) ToolsUsed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, s := range m.steps {
		if s.Action == nil || s.Action.Status == ActionSkipped {
			continue
		}
		if !seen[s.Action.ToolName] {
			seen[s.Action.ToolName] = true
			out = append(out, s.Action.ToolName)
		}
	}
	return out
}

// WasAttempted reports whether (tool, params) was already attempted this
// task — backing spec §4.5's "no auto-retry of the same pair" rule and the
// plan-time dedup-to-SKIPPED rule. Equality is by tool name and a stable
// string rendering of params, which is sufficient for the flat parameter
// maps tools accept.
func (m *ShortTermMemory) WasAttempted(toolName string, params map[string]any) bool {
	key := attemptKey(toolName, params)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.steps {
		if s.Action == nil {
			continue
		}
		if attemptKey(s.Action.ToolName, s.Action.Params) == key {
			return true
		}
	}
	return false
}

// SuccessfulSteps counts HistoryStep entries whose Action succeeded.
func (m *ShortTermMemory) SuccessfulSteps() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.steps {
		if s.Action != nil && s.Action.Status == ActionSuccess {
			n++
		}
	}
	return n
}
