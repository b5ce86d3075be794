package evaluation

import (
	"testing"

	"github.com/shuaitravel/agent/pkg/memory"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_SuccessRequiresNonEmptyResult(t *testing.T) {
	e := New()

	a := memory.NewAction("city_search", nil)
	a.Start()
	a.Finish(memory.ActionSuccess, map[string]any{"cities": []string{"成都"}}, "")

	eval := e.Evaluate(a)
	require.True(t, eval.Success)
	require.True(t, eval.HasResult)
	require.Greater(t, eval.ConfidenceDelta, 0.0)
}

func TestEvaluate_SuccessStatusWithEmptyResultIsNotSuccess(t *testing.T) {
	e := New()

	a := memory.NewAction("city_search", nil)
	a.Start()
	a.Finish(memory.ActionSuccess, map[string]any{}, "")

	eval := e.Evaluate(a)
	require.False(t, eval.Success)
	require.False(t, eval.HasResult)
}

func TestEvaluate_FailureYieldsNegativeDelta(t *testing.T) {
	e := New()

	a := memory.NewAction("city_search", nil)
	a.Start()
	a.Finish(memory.ActionTimeout, nil, "deadline exceeded")

	eval := e.Evaluate(a)
	require.False(t, eval.Success)
	require.Less(t, eval.ConfidenceDelta, 0.0)
}

func TestEvaluate_SkippedActionIsNeutral(t *testing.T) {
	e := New()

	a := memory.NewAction("city_search", nil)
	a.Skip()

	eval := e.Evaluate(a)
	require.False(t, eval.Success)
	require.Equal(t, 0.0, eval.ConfidenceDelta)
}

func TestEvaluate_NilActionIsZeroValue(t *testing.T) {
	e := New()
	require.Equal(t, memory.Evaluation{}, e.Evaluate(nil))
}
