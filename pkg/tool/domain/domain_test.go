package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shuaitravel/agent/pkg/tool"
)

func TestCitySearch_ReturnsCitiesMatchingInterest(t *testing.T) {
	r := tool.New(nil)
	d, e := CitySearch()
	require.NoError(t, r.Register(d, e))

	result := r.Execute(context.Background(), "city_search", map[string]any{
		"interests": []string{"美食"},
	})
	require.True(t, result.Success)
	cities, ok := result.Value["cities"].([]map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, cities)
}

func TestCitySearch_RequiresInterests(t *testing.T) {
	r := tool.New(nil)
	d, e := CitySearch()
	require.NoError(t, r.Register(d, e))

	result := r.Execute(context.Background(), "city_search", map[string]any{"interests": []string{}})
	require.False(t, result.Success)
	require.Equal(t, tool.FailureExecutionError, result.Kind)
}

func TestRoutePlanner_BuildsItineraryForEachDay(t *testing.T) {
	r := tool.New(nil)
	d, e := RoutePlanner()
	require.NoError(t, r.Register(d, e))

	result := r.Execute(context.Background(), "route_planner", map[string]any{
		"city": "北京", "days": 3,
	})
	require.True(t, result.Success)
	itinerary, ok := result.Value["itinerary"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, itinerary, 3)
}

func TestPreferenceUpdate_WritesToSharedState(t *testing.T) {
	state := map[string]string{}
	r := tool.New(nil)
	d, e := PreferenceUpdate(state)
	require.NoError(t, r.Register(d, e))

	result := r.Execute(context.Background(), "preference_update", map[string]any{
		"key": "diet", "value": "vegetarian",
	})
	require.True(t, result.Success)
	require.Equal(t, "vegetarian", state["diet"])
}

func TestFinalAnswer_IsTerminal(t *testing.T) {
	r := tool.New(nil)
	require.NoError(t, Register(r, map[string]string{}))
	require.Contains(t, r.TerminalTools(), "final_answer")
}
