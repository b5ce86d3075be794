package thought

import (
	"context"
	"testing"

	"github.com/shuaitravel/agent/pkg/memory"
	"github.com/shuaitravel/agent/pkg/tool"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeTask_FallsBackToRuleBasedWithoutLLM(t *testing.T) {
	e := New(nil)
	th := e.AnalyzeTask(context.Background(), "推荐几个适合美食爱好者的城市", nil)

	require.Equal(t, memory.ThoughtAnalysis, th.Type)
	require.Equal(t, memory.PhaseUnderstanding, th.Phase)
	require.Contains(t, th.Content, string(IntentCityRecommendation))
}

func TestPlanActions_ProducesStepsWhenToolAvailable(t *testing.T) {
	e := New(nil)
	analysis := memory.NewThought(memory.ThoughtAnalysis, memory.PhaseUnderstanding, "intent=city_recommendation entities={}", 0.8, nil)

	registry := []tool.Descriptor{{Name: "city_search"}}
	plan := e.PlanActions(analysis, registry, "美食", map[string]string{})

	require.Equal(t, memory.ThoughtPlanning, plan.Type)
	require.True(t, plan.Decision.HasTool())
	require.Equal(t, "city_search", plan.Decision.Steps[0].Tool)
	require.GreaterOrEqual(t, plan.Confidence, 0.7)
}

func TestPlanActions_ExtractsKnownInterestTagFromRawUtterance(t *testing.T) {
	e := New(nil)
	analysis := memory.NewThought(memory.ThoughtAnalysis, memory.PhaseUnderstanding, "intent=city_recommendation entities={}", 0.8, nil)

	registry := []tool.Descriptor{{Name: "city_search"}}
	plan := e.PlanActions(analysis, registry, "推荐适合美食游的城市", map[string]string{})

	require.True(t, plan.Decision.HasTool())
	require.Equal(t, []string{"美食"}, plan.Decision.Steps[0].Params["interests"])
}

func TestPlanActions_NoStepsWhenToolUnavailable(t *testing.T) {
	e := New(nil)
	analysis := memory.NewThought(memory.ThoughtAnalysis, memory.PhaseUnderstanding, "intent=general_chat", 0.8, nil)

	plan := e.PlanActions(analysis, nil, "hello", nil)
	require.False(t, plan.Decision.HasTool())
}

func TestInfer_ReflectsOnFailedAction(t *testing.T) {
	e := New(nil)
	a := memory.NewAction("city_search", nil)
	a.Start()
	a.Finish(memory.ActionFailed, nil, "boom")

	th := e.Infer(memory.Observation{LastAction: a})
	require.Equal(t, memory.ThoughtReflection, th.Type)
}

func TestDecide_HighConfidenceDecision(t *testing.T) {
	e := New(nil)
	th := e.Decide(memory.Observation{StepIndex: 2})
	require.Equal(t, memory.ThoughtDecision, th.Type)
	require.Greater(t, th.Confidence, 0.9)
}
