package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shuaitravel/agent/pkg/evaluation"
	"github.com/shuaitravel/agent/pkg/llm"
	"github.com/shuaitravel/agent/pkg/mode"
	"github.com/shuaitravel/agent/pkg/react"
	"github.com/shuaitravel/agent/pkg/thought"
	"github.com/shuaitravel/agent/pkg/tool"
	"github.com/stretchr/testify/require"
)

type fakeCapability struct{ text string }

func (f fakeCapability) ModelName() string { return "fake" }
func (f fakeCapability) Generate(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (llm.Response, error) {
	return llm.Response{Text: f.text}, nil
}
func (f fakeCapability) GenerateStreaming(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Text: f.text}
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func testResolver(t *testing.T) ModelResolver {
	t.Helper()
	cap := fakeCapability{text: "a reply"}
	registry := tool.New(nil)
	dispatcher := mode.New(cap, registry, thought.New(nil), react.New(registry, thought.New(nil), evaluation.New(), cap), 10)
	return func(ctx context.Context, sessionID, modelID string) (*mode.Dispatcher, []llm.Message, error) {
		return dispatcher, nil, nil
	}
}

func TestServer_ProcessMessageUnary(t *testing.T) {
	s := NewServer(testResolver(t), "test-version")
	server := httptest.NewServer(s.Routes())
	defer server.Close()

	body, _ := json.Marshal(Request{
		JSONRPC: "2.0", ID: 1, Method: "ProcessMessage",
		Params: mustJSON(t, MessageParams{SessionID: "s1", UserInput: "hi", Mode: "react"}),
	})

	resp, err := http.Post(server.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Nil(t, out.Error)

	result, ok := out.Result.(map[string]any)
	require.True(t, ok)
	history, ok := result["history"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, history)
	step, ok := history[0].(map[string]any)
	require.True(t, ok)
	require.Contains(t, step, "thought")
	require.Contains(t, step, "timestamp")
}

func TestServer_HealthCheck(t *testing.T) {
	s := NewServer(testResolver(t), "v1.2.3")
	server := httptest.NewServer(s.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.True(t, status.Live)
	require.Equal(t, "v1.2.3", status.Version)
}

func TestServer_UnknownMethodReturnsRPCError(t *testing.T) {
	s := NewServer(testResolver(t), "v1")
	server := httptest.NewServer(s.Routes())
	defer server.Close()

	body, _ := json.Marshal(Request{JSONRPC: "2.0", ID: 2, Method: "Nonsense"})
	resp, err := http.Post(server.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	require.Equal(t, codeMethodNotFound, out.Error.Code)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
