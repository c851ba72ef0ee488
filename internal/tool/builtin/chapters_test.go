package builtin

import (
	"context"
	"encoding/json"
	"testing"

	apperrors "github.com/talemachine/talemachine/internal/errors"
	"github.com/talemachine/talemachine/internal/graph"
	"github.com/talemachine/talemachine/internal/mutation"
	"github.com/talemachine/talemachine/internal/store"
	toolcore "github.com/talemachine/talemachine/internal/tool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSyncer struct {
	entities []graph.Entity
	answer   string
}

func (s *stubSyncer) EnsureNamespace(_ context.Context, name string) (string, error) {
	return graph.SanitizeDatabaseName(name), nil
}

func (s *stubSyncer) DropNamespace(context.Context, string) error { return nil }

func (s *stubSyncer) ExtractAndUpsert(context.Context, string, string) ([]graph.Entity, error) {
	return s.entities, nil
}

func (s *stubSyncer) AnswerQuery(context.Context, string, string, int) (string, error) {
	return s.answer, nil
}

func setup(t *testing.T) (*mutation.Service, store.Store, *stubSyncer, int64) {
	t.Helper()
	st := store.NewMemoryStore()
	syncer := &stubSyncer{}
	svc := mutation.NewService(st, syncer)

	created, err := svc.CreateStory(context.Background(), mutation.CreateStoryParams{Title: "Test Story"})
	require.NoError(t, err)
	return svc, st, syncer, created.ID
}

func TestSaveChapterTool(t *testing.T) {
	svc, _, syncer, storyID := setup(t)
	syncer.entities = []graph.Entity{{Label: "Person", Name: "Alice"}}
	tool := &SaveChapterTool{Service: svc}

	input, _ := json.Marshal(map[string]any{
		"content":  "Alice arrives at Elmwood Park.",
		"story_id": storyID,
		"title":    "Chapter One",
		"summary":  "Alice arrives.",
	})

	result, err := tool.Execute(context.Background(), input)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(result, &payload))
	assert.Equal(t, "Chapter One", payload["title"])
	assert.Equal(t, 10000.0, payload["sort_order"])
	assert.Equal(t, true, payload["graph_synced"])
}

func TestSaveChapterToolMissingStory(t *testing.T) {
	svc, _, _, _ := setup(t)
	tool := &SaveChapterTool{Service: svc}

	input := json.RawMessage(`{"content":"x","story_id":999,"title":"X"}`)
	_, err := tool.Execute(context.Background(), input)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetChapterToolsRoundTrip(t *testing.T) {
	svc, st, _, storyID := setup(t)
	ctx := context.Background()

	saved, err := svc.InsertChapterWithOrdering(ctx, mutation.InsertChapterParams{
		StoryID: storyID, Title: "Chapter One", Content: "body", Summary: "sum",
	})
	require.NoError(t, err)

	byID := &GetChapterByIDTool{Store: st}
	input, _ := json.Marshal(map[string]any{"chapter_id": saved.ID})
	result, err := byID.Execute(ctx, input)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(result, &payload))
	assert.Equal(t, "body", payload["content"])

	// Missing chapters come back as JSON null, not an error.
	input, _ = json.Marshal(map[string]any{"chapter_id": 9999})
	result, err = byID.Execute(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "null", string(result))

	byTitle := &GetChapterByTitleTool{Store: st}
	input, _ = json.Marshal(map[string]any{"story_id": storyID, "title": "Chapter One"})
	result, err = byTitle.Execute(ctx, input)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(result, &payload))
	assert.Equal(t, saved.Title, payload["title"])

	// Title match is case-sensitive.
	input, _ = json.Marshal(map[string]any{"story_id": storyID, "title": "chapter one"})
	result, err = byTitle.Execute(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "null", string(result))
}

func TestGetAllChaptersToolExcludesContent(t *testing.T) {
	svc, st, _, storyID := setup(t)
	ctx := context.Background()

	_, err := svc.InsertChapterWithOrdering(ctx, mutation.InsertChapterParams{
		StoryID: storyID, Title: "One", Content: "secret body", Summary: "s1",
	})
	require.NoError(t, err)

	tool := &GetAllChaptersTool{Store: st}
	input, _ := json.Marshal(map[string]any{"story_id": storyID})
	result, err := tool.Execute(ctx, input)
	require.NoError(t, err)

	var payload []map[string]any
	require.NoError(t, json.Unmarshal(result, &payload))
	require.Len(t, payload, 1)
	assert.Equal(t, "One", payload[0]["title"])
	assert.NotContains(t, payload[0], "content")
}

func TestDeleteChapterToolIdempotent(t *testing.T) {
	svc, st, _, storyID := setup(t)
	ctx := context.Background()

	saved, err := svc.InsertChapterWithOrdering(ctx, mutation.InsertChapterParams{
		StoryID: storyID, Title: "One", Content: "x",
	})
	require.NoError(t, err)

	tool := &DeleteChapterTool{Store: st}
	input, _ := json.Marshal(map[string]any{"chapter_id": saved.ID})

	result, err := tool.Execute(ctx, input)
	require.NoError(t, err)
	assert.JSONEq(t, `{"deleted":true}`, string(result))

	result, err = tool.Execute(ctx, input)
	require.NoError(t, err)
	assert.JSONEq(t, `{"deleted":false}`, string(result))
}

func TestAttachImageTool(t *testing.T) {
	svc, _, _, storyID := setup(t)
	tool := &AttachImageTool{Service: svc}

	input, _ := json.Marshal(map[string]any{"story_id": storyID, "image_path": "covers/a.png"})
	result, err := tool.Execute(context.Background(), input)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(result, &payload))
	assert.Equal(t, "covers/a.png", payload["image_path"])
	assert.NotContains(t, payload, "chapter_id")
}

func TestQueryStoryGraphTool(t *testing.T) {
	svc, _, syncer, storyID := setup(t)
	syncer.answer = "Alice and Emily had a picnic."
	tool := &QueryStoryGraphTool{Service: svc}

	input, _ := json.Marshal(map[string]any{"story_id": storyID, "question": "what happened?"})
	result, err := tool.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"Alice and Emily had a picnic."}`, string(result))
}

func TestRegisterAll(t *testing.T) {
	svc, st, _, _ := setup(t)

	registry := toolcore.NewRegistry()
	RegisterAll(registry, svc, st)

	for _, name := range []string{
		"save_chapter", "get_chapter_by_id", "get_chapter_by_title",
		"get_all_chapters_by_story_id", "delete_chapter_by_id",
		"attach_image", "query_story_graph",
	} {
		_, ok := registry.Get(name)
		assert.True(t, ok, "missing tool %s", name)
	}
}
