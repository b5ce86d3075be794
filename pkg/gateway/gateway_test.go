package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shuaitravel/agent/pkg/chunk"
	"github.com/shuaitravel/agent/pkg/mode"
	"github.com/shuaitravel/agent/pkg/modelconfig"
	"github.com/shuaitravel/agent/pkg/session"
)

var errAgentDown = errors.New("agent unreachable")

type fakeDispatcher struct {
	emitHeartbeatGap bool
}

func (f *fakeDispatcher) Run(ctx context.Context, turn mode.Turn, emit chunk.Emitter) mode.Outcome {
	_ = emit(chunk.SessionID(turn.SessionID))
	_ = emit(chunk.ReasoningStart())
	_ = emit(chunk.ReasoningChunk("thinking about " + turn.UserInput))
	_ = emit(chunk.ReasoningEnd())
	if f.emitHeartbeatGap {
		time.Sleep(30 * time.Millisecond)
	}
	_ = emit(chunk.AnswerStart())
	_ = emit(chunk.AnswerChunk("the answer"))
	_ = emit(chunk.Done(chunk.Stats{Success: true, TotalSteps: 1}))
	return mode.Outcome{Success: true, Answer: "the answer"}
}

func readSSEEvents(t *testing.T, body *bufio.Reader) []chunk.Chunk {
	t.Helper()
	var events []chunk.Chunk
	for {
		line, err := body.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var c chunk.Chunk
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &c))
		events = append(events, c)
		if c.Type == chunk.TypeDone {
			break
		}
	}
	return events
}

func TestGateway_ChatStreamAppendsBothTurnsToSession(t *testing.T) {
	store := session.New()
	srv := NewServer(store, &fakeDispatcher{}, NewCatalog(nil), "default-model")
	server := httptest.NewServer(srv.Routes())
	defer server.Close()

	body, _ := json.Marshal(chatRequest{SessionID: "s1", UserInput: "hello there"})
	resp, err := http.Post(server.URL+"/api/chat/stream", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readSSEEvents(t, bufio.NewReader(resp.Body))
	require.NotEmpty(t, events)
	require.Equal(t, chunk.TypeSessionID, events[0].Type)
	require.Equal(t, chunk.TypeDone, events[len(events)-1].Type)

	var sawAnswerChunk bool
	for _, e := range events {
		require.NotEqual(t, chunk.TypeAnswerChunk, e.Type, "answer tokens must go out renamed as \"chunk\", not the internal type name")
		if e.Type == chunk.Type("chunk") {
			sawAnswerChunk = true
			require.Equal(t, "the answer", e.Text)
		}
	}
	require.True(t, sawAnswerChunk, "expected an SSE event of external type \"chunk\"")

	sess, ok := store.Get("s1")
	require.True(t, ok)
	require.Len(t, sess.Messages, 2)
	require.Equal(t, session.RoleUser, sess.Messages[0].Role)
	require.Equal(t, session.RoleAssistant, sess.Messages[1].Role)
	require.Equal(t, "the answer", sess.Messages[1].Content)
}

func TestGateway_ChatStreamRejectsEmptyInput(t *testing.T) {
	store := session.New()
	srv := NewServer(store, &fakeDispatcher{}, NewCatalog(nil), "default-model")
	server := httptest.NewServer(srv.Routes())
	defer server.Close()

	body, _ := json.Marshal(chatRequest{SessionID: "s1", UserInput: "   "})
	resp, err := http.Post(server.URL+"/api/chat/stream", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, false, out["success"])
}

func TestGateway_ChatStreamInsertsHeartbeatDuringSilence(t *testing.T) {
	store := session.New()
	srv := NewServer(store, &fakeDispatcher{emitHeartbeatGap: true}, NewCatalog(nil), "default-model").
		WithHeartbeatInterval(5 * time.Millisecond)
	server := httptest.NewServer(srv.Routes())
	defer server.Close()

	body, _ := json.Marshal(chatRequest{SessionID: "s2", UserInput: "hi"})
	resp, err := http.Post(server.URL+"/api/chat/stream", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readSSEEvents(t, bufio.NewReader(resp.Body))
	var sawHeartbeat bool
	for _, e := range events {
		if e.Type == chunk.TypeHeartbeat {
			sawHeartbeat = true
		}
	}
	require.True(t, sawHeartbeat)
}

func TestGateway_SessionLifecycleEndpoints(t *testing.T) {
	store := session.New()
	srv := NewServer(store, &fakeDispatcher{}, NewCatalog(nil), "default-model")
	server := httptest.NewServer(srv.Routes())
	defer server.Close()

	createBody, _ := json.Marshal(newSessionRequest{SessionID: "s3", Name: "trip planning"})
	resp, err := http.Post(server.URL+"/api/session/new", "application/json", bytes.NewReader(createBody))
	require.NoError(t, err)
	resp.Body.Close()

	renameBody, _ := json.Marshal(renameRequest{Name: "renamed"})
	req, _ := http.NewRequest(http.MethodPut, server.URL+"/api/session/s3/name", bytes.NewReader(renameBody))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sess, ok := store.Get("s3")
	require.True(t, ok)
	require.Equal(t, "renamed", sess.Name)

	resp, err = http.Get(server.URL + "/api/sessions?include_empty=true")
	require.NoError(t, err)
	var list []session.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)

	req, _ = http.NewRequest(http.MethodDelete, server.URL+"/api/session/s3", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	_, ok = store.Get("s3")
	require.False(t, ok)
}

func TestGateway_ModelsEndpoints(t *testing.T) {
	store := session.New()
	catalog := NewCatalog([]modelconfig.ModelEntry{
		{ModelID: "gpt", Name: "GPT", Provider: "openai"},
	})
	srv := NewServer(store, &fakeDispatcher{}, catalog, "gpt")
	server := httptest.NewServer(srv.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/models")
	require.NoError(t, err)
	var models []ModelInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&models))
	resp.Body.Close()
	require.Len(t, models, 1)

	resp, err = http.Get(server.URL + "/api/models/missing")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestGateway_ReadyReflectsAgentPing(t *testing.T) {
	store := session.New()
	srv := NewServer(store, &fakeDispatcher{}, NewCatalog(nil), "default-model").
		WithAgentPing(func(ctx context.Context) error { return errAgentDown })
	server := httptest.NewServer(srv.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGateway_HealthEndpoints(t *testing.T) {
	store := session.New()
	srv := NewServer(store, &fakeDispatcher{}, NewCatalog(nil), "default-model")
	server := httptest.NewServer(srv.Routes())
	defer server.Close()

	for _, path := range []string{"/api/health", "/api/ready", "/api/live"} {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
}
