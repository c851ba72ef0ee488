package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/talemachine/talemachine/internal/agent"
	"github.com/talemachine/talemachine/internal/approval"
	"github.com/talemachine/talemachine/internal/config"
	"github.com/talemachine/talemachine/internal/graph"
	"github.com/talemachine/talemachine/internal/model/contract"
	"github.com/talemachine/talemachine/internal/mutation"
	"github.com/talemachine/talemachine/internal/notify"
	"github.com/talemachine/talemachine/internal/store"
	"github.com/talemachine/talemachine/internal/tool"
	"github.com/talemachine/talemachine/internal/tool/builtin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	responses []*contract.CompletionResponse
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(_ context.Context, _ contract.CompletionRequest) (*contract.CompletionResponse, error) {
	if p.calls >= len(p.responses) {
		return nil, fmt.Errorf("scripted provider exhausted")
	}
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

type stubSyncer struct{ answer string }

func (s *stubSyncer) EnsureNamespace(_ context.Context, name string) (string, error) {
	return graph.SanitizeDatabaseName(name), nil
}
func (s *stubSyncer) DropNamespace(context.Context, string) error { return nil }
func (s *stubSyncer) ExtractAndUpsert(context.Context, string, string) ([]graph.Entity, error) {
	return nil, nil
}
func (s *stubSyncer) AnswerQuery(context.Context, string, string, int) (string, error) {
	return s.answer, nil
}

type env struct {
	handler  http.Handler
	store    *store.MemoryStore
	provider *scriptedProvider
	syncer   *stubSyncer
}

func newEnv(t *testing.T) *env {
	t.Helper()

	st := store.NewMemoryStore()
	syncer := &stubSyncer{}
	svc := mutation.NewService(st, syncer)

	gate, err := approval.NewGate(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { gate.Close() })

	registry := tool.NewRegistry()
	builtin.RegisterAll(registry, svc, st)
	runner := tool.NewRunner(registry, gate, config.GovernanceConfig{
		SensitiveTools: []string{"save_chapter", "delete_chapter_by_id", "attach_image"},
		OverrideFields: map[string]string{"attach_image": "chapter_id"},
	})

	transcripts, err := agent.NewTranscriptStore(t.TempDir())
	require.NoError(t, err)

	provider := &scriptedProvider{}
	runtime := agent.NewRuntime(provider, runner, gate, transcripts, st, config.AgentConfig{MaxTurns: 5}, "test-model")

	srv := &Server{
		runtime:  runtime,
		service:  svc,
		store:    st,
		gate:     gate,
		notifier: notify.Null{},
	}
	return &env{handler: srv.Routes(), store: st, provider: provider, syncer: syncer}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *env) createStory(t *testing.T, title string) map[string]any {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/stories/", map[string]any{"title": title, "genre": "fantasy"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStoryLifecycle(t *testing.T) {
	e := newEnv(t)

	created := e.createStory(t, "The Lost Kingdom")
	storyID := int64(created["id"].(float64))
	assert.Equal(t, "thelostkingdom", created["graph_database_name"])

	rec := e.do(t, http.MethodGet, fmt.Sprintf("/api/stories/%d", storyID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPatch, fmt.Sprintf("/api/stories/%d", storyID), map[string]any{"title": "The Found Kingdom"})
	require.Equal(t, http.StatusOK, rec.Code)
	var renamed map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &renamed))
	assert.Equal(t, "The Found Kingdom", renamed["title"])

	rec = e.do(t, http.MethodGet, "/api/stories/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodDelete, fmt.Sprintf("/api/stories/%d", storyID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":true}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/api/stories/%d", storyID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateStoryConflict(t *testing.T) {
	e := newEnv(t)
	e.createStory(t, "Same Name")

	rec := e.do(t, http.MethodPost, "/api/stories/", map[string]any{"title": "same name"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMessageApprovalFlow(t *testing.T) {
	e := newEnv(t)
	created := e.createStory(t, "Approved Tale")
	storyID := int64(created["id"].(float64))

	args, _ := json.Marshal(map[string]any{"content": "Alice arrives.", "story_id": storyID, "title": "One"})
	e.provider.responses = []*contract.CompletionResponse{
		{ToolCalls: []*contract.ToolCall{{ID: "call_1", Name: "save_chapter", Input: string(args)}}},
		{Content: "Chapter saved."},
	}

	rec := e.do(t, http.MethodPost, "/api/messages", map[string]any{"story_id": storyID, "message": "write chapter one"})
	require.Equal(t, http.StatusOK, rec.Code)

	var reply agent.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	require.NotNil(t, reply.Interrupt)
	assert.Equal(t, "save_chapter", reply.Interrupt.ToolName)

	// The pending action is visible to reviewers.
	rec = e.do(t, http.MethodGet, "/api/approvals/"+reply.ThreadID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/messages/resume", map[string]any{"thread_id": reply.ThreadID, "approved": true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "Chapter saved.", reply.Content)

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/api/stories/%d/chapters", storyID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var chapters []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chapters))
	require.Len(t, chapters, 1)
	assert.Equal(t, "One", chapters[0]["title"])
}

func TestResumeWithoutPendingConflicts(t *testing.T) {
	e := newEnv(t)
	created := e.createStory(t, "No Pending")
	storyID := int64(created["id"].(float64))

	e.provider.responses = []*contract.CompletionResponse{{Content: "hello"}}
	rec := e.do(t, http.MethodPost, "/api/messages", map[string]any{"story_id": storyID, "message": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	var reply agent.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))

	rec = e.do(t, http.MethodPost, "/api/messages/resume", map[string]any{"thread_id": reply.ThreadID, "approved": true})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResumeRequiresThreadID(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/messages/resume", map[string]any{"approved": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGraphQueryEndpoint(t *testing.T) {
	e := newEnv(t)
	created := e.createStory(t, "Graphed")
	storyID := int64(created["id"].(float64))
	e.syncer.answer = "Alice leads the rebellion."

	rec := e.do(t, http.MethodPost, fmt.Sprintf("/api/stories/%d/graph/query", storyID), map[string]any{"question": "who leads?"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"answer":"Alice leads the rebellion."}`, rec.Body.String())

	// Empty questions are rejected before touching the graph.
	rec = e.do(t, http.MethodPost, fmt.Sprintf("/api/stories/%d/graph/query", storyID), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetChapterNotFound(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/chapters/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/chapters/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
