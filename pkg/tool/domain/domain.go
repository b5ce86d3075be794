// Package domain provides the travel-assistant tool executors that stand in
// for "the static travel knowledge base (queried through an opaque tool
// interface)" — deliberately out of scope per spec §1. Each executor is a
// small in-memory lookup; real deployments would swap these for calls into
// the actual knowledge base without touching the registry contract.
package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/shuaitravel/agent/pkg/tool"
)

type city struct {
	name      string
	interests []string
	summary   string
}

var cityCatalog = []city{
	{name: "成都", interests: []string{"美食", "熊猫", "休闲"}, summary: "成都以川菜和大熊猫基地闻名，节奏悠闲。"},
	{name: "西安", interests: []string{"历史", "美食", "古迹"}, summary: "西安是十三朝古都，兵马俑和回民街是必去之地。"},
	{name: "广州", interests: []string{"美食", "购物"}, summary: "广州早茶文化发达，粤菜选择丰富。"},
	{name: "杭州", interests: []string{"自然", "历史", "休闲"}, summary: "杭州西湖风景秀丽，适合漫步和品茶。"},
	{name: "北京", interests: []string{"历史", "古迹", "美食"}, summary: "北京是首都，故宫长城与京味小吃兼备。"},
}

type attraction struct {
	city    string
	name    string
	kind    string
	summary string
}

var attractionCatalog = []attraction{
	{city: "北京", name: "故宫", kind: "古迹", summary: "明清两代皇宫，建议预约半天以上。"},
	{city: "北京", name: "长城", kind: "古迹", summary: "八达岭段交通便利，登高远眺。"},
	{city: "北京", name: "王府井小吃街", kind: "美食", summary: "京味小吃集中地。"},
	{city: "成都", name: "大熊猫繁育研究基地", kind: "休闲", summary: "清晨前往可见熊猫活跃觅食。"},
	{city: "西安", name: "兵马俑博物馆", kind: "古迹", summary: "秦始皇陵陪葬坑，规模宏大。"},
}

// cityParams / attractionParams / routeParams / preferenceParams /
// finalAnswerParams decode the registry's map[string]any payload via
// mapstructure, matching the pack's convention of typed executor structs
// over hand-walked maps. The json/jsonschema tags double as the source
// jsonschema.Reflect draws each tool's advertised parameter schema from, so
// the decode shape and the advertised shape never drift apart.
type cityParams struct {
	Interests []string `mapstructure:"interests" json:"interests" jsonschema:"required,description=interest tags such as 美食"`
}

type attractionParams struct {
	City string `mapstructure:"city" json:"city" jsonschema:"required,description=city name"`
}

type routeParams struct {
	City string `mapstructure:"city" json:"city" jsonschema:"required,description=city name"`
	Days int    `mapstructure:"days" json:"days" jsonschema:"required,description=trip length in days"`
}

type preferenceParams struct {
	Key   string `mapstructure:"key" json:"key" jsonschema:"required"`
	Value string `mapstructure:"value" json:"value" jsonschema:"required"`
}

type finalAnswerParams struct {
	Summary string `mapstructure:"summary" json:"summary" jsonschema:"required,description=the answer text"`
}

func decode[T any](params map[string]any) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: &out, WeaklyTypedInput: true})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(params); err != nil {
		return out, err
	}
	return out, nil
}

// CitySearch recommends cities matching the requested interests.
func CitySearch() (tool.Descriptor, tool.Executor) {
	d := tool.Descriptor{
		Name:        "city_search",
		Description: "Recommend cities matching a list of travel interests.",
		Parameters: []tool.Parameter{
			{Name: "interests", Type: "array", Description: "interest tags, e.g. [\"美食\"]", Required: true},
		},
		Timeout:    5 * time.Second,
		Category:   "knowledge",
		Tags:       []string{"city", "recommendation"},
		ParamsType: cityParams{},
	}
	e := tool.ExecutorFunc(func(ctx context.Context, params map[string]any) (map[string]any, error) {
		p, err := decode[cityParams](params)
		if err != nil {
			return nil, fmt.Errorf("city_search: %w", err)
		}
		if len(p.Interests) == 0 {
			return nil, fmt.Errorf("city_search: at least one interest is required")
		}
		type scored struct {
			city  city
			score int
		}
		var matches []scored
		for _, c := range cityCatalog {
			score := 0
			for _, want := range p.Interests {
				for _, have := range c.interests {
					if strings.EqualFold(want, have) {
						score++
					}
				}
			}
			if score > 0 {
				matches = append(matches, scored{city: c, score: score})
			}
		}
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

		results := make([]map[string]any, 0, len(matches))
		for _, m := range matches {
			results = append(results, map[string]any{
				"name":    m.city.name,
				"summary": m.city.summary,
			})
		}
		return map[string]any{"cities": results}, nil
	})
	return d, e
}

// AttractionQuery lists notable attractions for a city.
func AttractionQuery() (tool.Descriptor, tool.Executor) {
	d := tool.Descriptor{
		Name:        "attraction_query",
		Description: "List notable attractions for a given city.",
		Parameters: []tool.Parameter{
			{Name: "city", Type: "string", Required: true},
		},
		Timeout:    5 * time.Second,
		Category:   "knowledge",
		Tags:       []string{"attraction"},
		ParamsType: attractionParams{},
	}
	e := tool.ExecutorFunc(func(ctx context.Context, params map[string]any) (map[string]any, error) {
		p, err := decode[attractionParams](params)
		if err != nil {
			return nil, fmt.Errorf("attraction_query: %w", err)
		}
		if p.City == "" {
			return nil, fmt.Errorf("attraction_query: city is required")
		}
		var results []map[string]any
		for _, a := range attractionCatalog {
			if a.city == p.City {
				results = append(results, map[string]any{
					"name":    a.name,
					"kind":    a.kind,
					"summary": a.summary,
				})
			}
		}
		return map[string]any{"attractions": results}, nil
	})
	return d, e
}

// RoutePlanner builds a naive day-by-day itinerary from the attraction
// catalog, round-robining attractions across the requested day count.
func RoutePlanner() (tool.Descriptor, tool.Executor) {
	d := tool.Descriptor{
		Name:        "route_planner",
		Description: "Build a day-by-day itinerary for a city.",
		Parameters: []tool.Parameter{
			{Name: "city", Type: "string", Required: true},
			{Name: "days", Type: "number", Required: true},
		},
		Timeout:    5 * time.Second,
		Category:   "planning",
		Tags:       []string{"itinerary"},
		ParamsType: routeParams{},
	}
	e := tool.ExecutorFunc(func(ctx context.Context, params map[string]any) (map[string]any, error) {
		p, err := decode[routeParams](params)
		if err != nil {
			return nil, fmt.Errorf("route_planner: %w", err)
		}
		if p.City == "" || p.Days <= 0 {
			return nil, fmt.Errorf("route_planner: city and a positive days count are required")
		}
		var spots []string
		for _, a := range attractionCatalog {
			if a.city == p.City {
				spots = append(spots, a.name)
			}
		}
		if len(spots) == 0 {
			return nil, fmt.Errorf("route_planner: no attractions known for %q", p.City)
		}
		itinerary := make([]map[string]any, p.Days)
		for day := 0; day < p.Days; day++ {
			itinerary[day] = map[string]any{
				"day":  day + 1,
				"spot": spots[day%len(spots)],
			}
		}
		return map[string]any{"city": p.City, "itinerary": itinerary}, nil
	})
	return d, e
}

// PreferenceUpdate records a user preference (e.g. dietary restriction)
// into the state map passed in. Backed by that in-memory map rather than
// any persistent store — per spec §1's non-goal of cross-restart
// persistence.
func PreferenceUpdate(state map[string]string) (tool.Descriptor, tool.Executor) {
	d := tool.Descriptor{
		Name:        "preference_update",
		Description: "Record a user preference for the remainder of the conversation.",
		Parameters: []tool.Parameter{
			{Name: "key", Type: "string", Required: true},
			{Name: "value", Type: "string", Required: true},
		},
		Timeout:    time.Second,
		Category:   "memory",
		Tags:       []string{"preference"},
		ParamsType: preferenceParams{},
	}
	e := tool.ExecutorFunc(func(ctx context.Context, params map[string]any) (map[string]any, error) {
		p, err := decode[preferenceParams](params)
		if err != nil {
			return nil, fmt.Errorf("preference_update: %w", err)
		}
		if p.Key == "" {
			return nil, fmt.Errorf("preference_update: key is required")
		}
		state[p.Key] = p.Value
		return map[string]any{"key": p.Key, "value": p.Value}, nil
	})
	return d, e
}

// FinalAnswer is the designated terminal tool: the ReAct loop's stop
// predicate treats its success as "the task is answered" (spec §4.5).
func FinalAnswer() (tool.Descriptor, tool.Executor) {
	d := tool.Descriptor{
		Name:        "final_answer",
		Description: "Mark the task as answered with the given summary.",
		Parameters: []tool.Parameter{
			{Name: "summary", Type: "string", Required: true},
		},
		Timeout:    time.Second,
		Category:   "answer",
		Tags:       []string{"terminal"},
		Terminal:   true,
		ParamsType: finalAnswerParams{},
	}
	e := tool.ExecutorFunc(func(ctx context.Context, params map[string]any) (map[string]any, error) {
		p, err := decode[finalAnswerParams](params)
		if err != nil {
			return nil, fmt.Errorf("final_answer: %w", err)
		}
		if p.Summary == "" {
			return nil, fmt.Errorf("final_answer: summary is required")
		}
		return map[string]any{"summary": p.Summary}, nil
	})
	return d, e
}

// Register installs all domain tools into r. state is the scratch map
// handed to PreferenceUpdate; its lifetime is whatever the caller gives it.
func Register(r *tool.Registry, state map[string]string) error {
	for _, ctor := range []func() (tool.Descriptor, tool.Executor){
		CitySearch,
		AttractionQuery,
		RoutePlanner,
		FinalAnswer,
	} {
		d, e := ctor()
		if err := r.Register(d, e); err != nil {
			return err
		}
	}
	d, e := PreferenceUpdate(state)
	return r.Register(d, e)
}
