// Package gateway implements the Gateway Service (spec §4.9): the
// internet-facing half of the two-process architecture. It owns the
// Session Store, translates a turn into the outward Server-Sent Events
// stream, and inserts heartbeats during silence. Grounded on
// odvcencio-buckley's pkg/ipc/server.go for chi routing conventions and on
// hector's pkg/server streaming handlers for the SSE write/flush loop.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/shuaitravel/agent/pkg/chunk"
	"github.com/shuaitravel/agent/pkg/llm"
	"github.com/shuaitravel/agent/pkg/mode"
	"github.com/shuaitravel/agent/pkg/modelconfig"
	"github.com/shuaitravel/agent/pkg/obs"
	"github.com/shuaitravel/agent/pkg/session"
)

// Dispatcher is the subset of *mode.Dispatcher the Gateway depends on. A
// real deployment can satisfy this either with an in-process Dispatcher or
// with an adapter over *rpc.Client when the Agent Service runs as a
// separate process (spec §2's two-process topology).
type Dispatcher interface {
	Run(ctx context.Context, turn mode.Turn, emit chunk.Emitter) mode.Outcome
}

// ModelInfo is the client-facing shape of a configured model.
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Catalog answers /api/models from the loaded model manifest.
type Catalog struct {
	entries []modelconfig.ModelEntry
}

// NewCatalog builds a Catalog from manifest rows.
func NewCatalog(entries []modelconfig.ModelEntry) *Catalog {
	return &Catalog{entries: append([]modelconfig.ModelEntry{}, entries...)}
}

// List returns all configured models.
func (c *Catalog) List() []ModelInfo {
	out := make([]ModelInfo, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, ModelInfo{ID: e.ModelID, Name: e.Name, Provider: e.Provider})
	}
	return out
}

// Get looks up one model by id.
func (c *Catalog) Get(id string) (ModelInfo, bool) {
	for _, e := range c.entries {
		if e.ModelID == id {
			return ModelInfo{ID: e.ModelID, Name: e.Name, Provider: e.Provider}, true
		}
	}
	return ModelInfo{}, false
}

// Server is the Gateway's HTTP surface (spec §6).
type Server struct {
	sessions     *session.Store
	dispatcher   Dispatcher
	catalog      *Catalog
	defaultModel string
	heartbeat    time.Duration
	started      time.Time
	agentPing    func(ctx context.Context) error
	metrics      *obs.Metrics
}

// NewServer wires the Gateway's collaborators. The heartbeat interval
// defaults to 30 seconds (spec §4.9); override with WithHeartbeatInterval
// for tests.
func NewServer(sessions *session.Store, dispatcher Dispatcher, catalog *Catalog, defaultModel string) *Server {
	return &Server{
		sessions:     sessions,
		dispatcher:   dispatcher,
		catalog:      catalog,
		defaultModel: defaultModel,
		heartbeat:    30 * time.Second,
		started:      time.Now(),
	}
}

// WithHeartbeatInterval overrides the silence window before a heartbeat is
// emitted on an open stream.
func (s *Server) WithHeartbeatInterval(d time.Duration) *Server {
	s.heartbeat = d
	return s
}

// WithAgentPing registers a probe used by /api/ready: liveness never
// depends on the Agent Service, but readiness does — the Gateway cannot
// serve a turn if the agent it delegates to is unreachable.
func (s *Server) WithAgentPing(ping func(ctx context.Context) error) *Server {
	s.agentPing = ping
	return s
}

// WithMetrics attaches the process-wide Prometheus instruments. Optional —
// a Server built without it simply records nothing.
func (s *Server) WithMetrics(m *obs.Metrics) *Server {
	s.metrics = m
	return s
}

// Routes mounts every endpoint spec §6 names.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	if s.metrics != nil {
		r.Use(obs.HTTPMetricsMiddleware(s.metrics))
	}

	r.Post("/api/chat/stream", s.handleChatStream)

	r.Post("/api/session/new", s.handleSessionNew)
	r.Get("/api/sessions", s.handleSessionsList)
	r.Delete("/api/session/{id}", s.handleSessionDelete)
	r.Put("/api/session/{id}/name", s.handleSessionRename)
	r.Put("/api/session/{id}/model", s.handleSessionSetModel)
	r.Get("/api/session/{id}/model", s.handleSessionGetModel)
	r.Post("/api/clear/{id}", s.handleClear)

	r.Get("/api/models", s.handleModelsList)
	r.Get("/api/models/{id}", s.handleModelGet)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Get("/api/live", s.handleLive)

	return r
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	UserInput string `json:"user_input"`
	ModelID   string `json:"model_id"`
	Mode      string `json:"mode"`
}

// handleChatStream is spec §6's POST /api/chat/stream: the sole SSE
// endpoint. It appends the user's turn before dispatch and the assistant's
// turn after the terminal done, owning both sides of the session log
// itself rather than delegating that to the dispatcher.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserInput) == "" {
		writeJSONError(w, http.StatusBadRequest, "user_input must not be empty")
		return
	}

	modelID := req.ModelID
	if modelID == "" {
		modelID = s.defaultModel
	}

	sess := s.sessions.Create(req.SessionID, "", modelID)
	if req.ModelID != "" {
		s.sessions.SetModel(sess.ID, req.ModelID)
	}
	s.sessions.AppendMessage(sess.ID, session.Message{Role: session.RoleUser, Content: req.UserInput})

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported by this response writer")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	queue := chunk.NewQueue(32)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer queue.Close()
		_ = s.dispatcher.Run(ctx, mode.Turn{
			SessionID: sess.ID,
			UserInput: req.UserInput,
			History:   toLLMHistory(sess.Messages),
			Mode:      mode.Mode(req.Mode),
		}, func(c chunk.Chunk) error {
			return queue.Emit(ctx, c)
		})
	}()

	var reasoning strings.Builder
	var answer strings.Builder

	timer := time.NewTimer(s.heartbeat)
	defer timer.Stop()

drain:
	for {
		select {
		case c, open := <-queue.C():
			if !open {
				break drain
			}
			writeSSE(w, c)
			flusher.Flush()

			switch c.Type {
			case chunk.TypeReasoningChunk:
				reasoning.WriteString(c.Text)
			case chunk.TypeAnswerChunk:
				answer.WriteString(c.Text)
			}

			drainTimer(timer)
			timer.Reset(s.heartbeat)

			if c.Type == chunk.TypeDone {
				break drain
			}
		case <-timer.C:
			writeSSE(w, chunk.Heartbeat())
			flusher.Flush()
			timer.Reset(s.heartbeat)
		case <-r.Context().Done():
			break drain
		}
	}

	s.sessions.AppendMessage(sess.ID, session.Message{
		Role:      session.RoleAssistant,
		Content:   answer.String(),
		Reasoning: reasoning.String(),
	})
}

func drainTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// sseEvent is the wire shape of an SSE event (spec §6). It mirrors
// chunk.Chunk field-for-field except for Type, which the Gateway renames
// from the internal "answer_chunk" to the external "chunk" — the same
// internal->external translation the RPC layer performs itself in
// toStreamFrame, just for a different wire format.
type sseEvent struct {
	Type      string       `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	SessionID string       `json:"session_id,omitempty"`
	Text      string       `json:"text,omitempty"`
	Message   string       `json:"message,omitempty"`
	Stats     *chunk.Stats `json:"stats,omitempty"`
}

func writeSSE(w http.ResponseWriter, c chunk.Chunk) {
	ev := sseEvent{
		Type:      sseEventType(c.Type),
		Timestamp: c.Timestamp,
		SessionID: c.SessionID,
		Text:      c.Text,
		Message:   c.Message,
		Stats:     c.Stats,
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
}

func sseEventType(t chunk.Type) string {
	if t == chunk.TypeAnswerChunk {
		return "chunk"
	}
	return string(t)
}

func toLLMHistory(msgs []session.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == session.RoleAssistant {
			role = "assistant"
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}

type newSessionRequest struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	ModelID   string `json:"model_id"`
}

func (s *Server) handleSessionNew(w http.ResponseWriter, r *http.Request) {
	var req newSessionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	modelID := req.ModelID
	if modelID == "" {
		modelID = s.defaultModel
	}
	sess := s.sessions.Create(req.SessionID, req.Name, modelID)
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	includeEmpty, _ := strconv.ParseBool(r.URL.Query().Get("include_empty"))
	writeJSON(w, http.StatusOK, s.sessions.List(includeEmpty))
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.sessions.Delete(id)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSessionRename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !s.sessions.Rename(id, req.Name) {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type setModelRequest struct {
	ModelID string `json:"model_id"`
}

func (s *Server) handleSessionSetModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req setModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !s.sessions.SetModel(id, req.ModelID) {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSessionGetModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"model_id": sess.ModelID})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sessions.ClearMessages(id) {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleModelsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.List())
}

func (s *Server) handleModelGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, ok := s.catalog.Get(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "model not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "serving",
		"uptime": time.Since(s.started).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.agentPing == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
		return
	}
	if err := s.agentPing(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"live": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError matches spec §7's error body shape: {success:false, error}.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}
