package mutation

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/talemachine/talemachine/internal/errors"
	"github.com/talemachine/talemachine/internal/graph"
	"github.com/talemachine/talemachine/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	namespaces map[string]bool
	dropped    []string
	entities   []graph.Entity
	extractErr error
	upserted   []string
	answer     string
	ensureErr  error
	insertErrs int
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{namespaces: map[string]bool{}}
}

func (f *fakeSyncer) EnsureNamespace(_ context.Context, name string) (string, error) {
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	final := graph.SanitizeDatabaseName(name)
	if f.namespaces[final] {
		return "", apperrors.Conflict("graph database already exists")
	}
	f.namespaces[final] = true
	return final, nil
}

func (f *fakeSyncer) DropNamespace(_ context.Context, name string) error {
	delete(f.namespaces, name)
	f.dropped = append(f.dropped, name)
	return nil
}

func (f *fakeSyncer) ExtractAndUpsert(_ context.Context, database, text string) ([]graph.Entity, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	f.upserted = append(f.upserted, text)
	return f.entities, nil
}

func (f *fakeSyncer) AnswerQuery(_ context.Context, _, _ string, _ int) (string, error) {
	return f.answer, nil
}

func newTestService(t *testing.T) (*Service, *store.MemoryStore, *fakeSyncer) {
	t.Helper()
	st := store.NewMemoryStore()
	syncer := newFakeSyncer()
	return NewService(st, syncer), st, syncer
}

func mustCreateStory(t *testing.T, svc *Service, title string) int64 {
	t.Helper()
	st, err := svc.CreateStory(context.Background(), CreateStoryParams{Title: title, Genre: "fantasy"})
	require.NoError(t, err)
	return st.ID
}

func TestCreateStoryReservesNamespace(t *testing.T) {
	svc, _, syncer := newTestService(t)

	created, err := svc.CreateStory(context.Background(), CreateStoryParams{Title: "The Lost Kingdom"})
	require.NoError(t, err)
	assert.Equal(t, "thelostkingdom", created.GraphDatabaseName)
	assert.True(t, syncer.namespaces["thelostkingdom"])
}

func TestCreateStoryNamespaceConflict(t *testing.T) {
	svc, _, _ := newTestService(t)

	mustCreateStory(t, svc, "My Story")

	// Same sanitized name, different title casing.
	_, err := svc.CreateStory(context.Background(), CreateStoryParams{Title: "MY STORY"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestDeleteStoryDropsNamespace(t *testing.T) {
	svc, _, syncer := newTestService(t)
	id := mustCreateStory(t, svc, "Doomed Tale")

	deleted, err := svc.DeleteStory(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Contains(t, syncer.dropped, "doomedtale")

	deleted, err = svc.DeleteStory(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestInsertChapterAppend(t *testing.T) {
	svc, _, syncer := newTestService(t)
	id := mustCreateStory(t, svc, "Appendix")
	syncer.entities = []graph.Entity{{Label: "Person", Name: "Alice"}}

	ctx := context.Background()
	first, err := svc.InsertChapterWithOrdering(ctx, InsertChapterParams{StoryID: id, Title: "One", Content: "Alice arrives."})
	require.NoError(t, err)
	assert.Equal(t, 10000.0, first.SortOrder)
	assert.True(t, first.GraphSynced)

	second, err := svc.InsertChapterWithOrdering(ctx, InsertChapterParams{StoryID: id, Title: "Two", Content: "Alice leaves."})
	require.NoError(t, err)
	assert.Equal(t, 20000.0, second.SortOrder)
}

func TestInsertChapterBetween(t *testing.T) {
	svc, st, _ := newTestService(t)
	id := mustCreateStory(t, svc, "Middles")

	ctx := context.Background()
	first, err := svc.InsertChapterWithOrdering(ctx, InsertChapterParams{StoryID: id, Title: "One", Content: "a"})
	require.NoError(t, err)
	_, err = svc.InsertChapterWithOrdering(ctx, InsertChapterParams{StoryID: id, Title: "Three", Content: "c"})
	require.NoError(t, err)

	mid, err := svc.InsertChapterWithOrdering(ctx, InsertChapterParams{StoryID: id, Title: "Two", Content: "b", AnchorChapterID: &first.ID})
	require.NoError(t, err)
	assert.Equal(t, 15000.0, mid.SortOrder)

	ordered, err := st.GetChaptersOrdered(ctx, id)
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.Equal(t, []string{"One", "Two", "Three"}, []string{ordered[0].Title, ordered[1].Title, ordered[2].Title})
}

func TestInsertChapterAtStart(t *testing.T) {
	svc, _, _ := newTestService(t)
	id := mustCreateStory(t, svc, "Prologue")

	ctx := context.Background()
	_, err := svc.InsertChapterWithOrdering(ctx, InsertChapterParams{StoryID: id, Title: "One", Content: "a"})
	require.NoError(t, err)

	prologue, err := svc.InsertChapterWithOrdering(ctx, InsertChapterParams{StoryID: id, Title: "Zero", Content: "z", InsertAtStart: true})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, prologue.SortOrder)
}

func TestInsertChapterAnchorNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	id := mustCreateStory(t, svc, "Anchored")

	missing := int64(999)
	_, err := svc.InsertChapterWithOrdering(context.Background(), InsertChapterParams{StoryID: id, Title: "X", Content: "x", AnchorChapterID: &missing})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInsertChapterAnchorFromOtherStory(t *testing.T) {
	svc, _, _ := newTestService(t)
	firstStory := mustCreateStory(t, svc, "First")
	secondStory := mustCreateStory(t, svc, "Second")

	ctx := context.Background()
	foreign, err := svc.InsertChapterWithOrdering(ctx, InsertChapterParams{StoryID: firstStory, Title: "One", Content: "a"})
	require.NoError(t, err)

	_, err = svc.InsertChapterWithOrdering(ctx, InsertChapterParams{StoryID: secondStory, Title: "X", Content: "x", AnchorChapterID: &foreign.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInsertChapterMissingStory(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.InsertChapterWithOrdering(context.Background(), InsertChapterParams{StoryID: 42, Title: "X", Content: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInsertChapterPartialCommit(t *testing.T) {
	svc, st, syncer := newTestService(t)
	id := mustCreateStory(t, svc, "Flaky Graph")
	syncer.extractErr = errors.New("neo4j unreachable")

	ctx := context.Background()
	ch, err := svc.InsertChapterWithOrdering(ctx, InsertChapterParams{StoryID: id, Title: "One", Content: "a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPartialCommit)

	// The chapter is saved despite the warning, flagged for resync.
	saved, getErr := st.GetChapterByID(ctx, ch.ID)
	require.NoError(t, getErr)
	assert.False(t, saved.GraphSynced)

	unsynced, getErr := st.ListUnsyncedChapters(ctx, 10)
	require.NoError(t, getErr)
	require.Len(t, unsynced, 1)
	assert.Equal(t, ch.ID, unsynced[0].ID)
}

func TestResyncChapter(t *testing.T) {
	svc, st, syncer := newTestService(t)
	id := mustCreateStory(t, svc, "Recovers")
	syncer.extractErr = errors.New("neo4j unreachable")

	ctx := context.Background()
	ch, err := svc.InsertChapterWithOrdering(ctx, InsertChapterParams{StoryID: id, Title: "One", Content: "a"})
	require.Error(t, err)

	syncer.extractErr = nil
	syncer.entities = []graph.Entity{{Label: "Person", Name: "Alice"}}
	require.NoError(t, svc.ResyncChapter(ctx, ch.ID))

	saved, err := st.GetChapterByID(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, saved.GraphSynced)

	mappings, err := st.GetMappingsByChapter(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "Alice", mappings[0].NodeName)
}

func TestInsertChapterWritesMappings(t *testing.T) {
	svc, st, syncer := newTestService(t)
	id := mustCreateStory(t, svc, "Mapped")
	syncer.entities = []graph.Entity{
		{Label: "Person", Name: "Alice"},
		{Label: "Location", Name: "Elmwood Park"},
	}

	ctx := context.Background()
	ch, err := svc.InsertChapterWithOrdering(ctx, InsertChapterParams{StoryID: id, Title: "One", Content: "a"})
	require.NoError(t, err)

	mappings, err := st.GetMappingsByChapter(ctx, ch.ID)
	require.NoError(t, err)
	assert.Len(t, mappings, 2)
}

func TestInsertChapterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	id := mustCreateStory(t, svc, "Validated")

	_, err := svc.InsertChapterWithOrdering(context.Background(), InsertChapterParams{StoryID: id, Title: "X"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	anchor := int64(1)
	_, err = svc.InsertChapterWithOrdering(context.Background(), InsertChapterParams{StoryID: id, Title: "X", Content: "x", AnchorChapterID: &anchor, InsertAtStart: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestAttachImage(t *testing.T) {
	svc, _, _ := newTestService(t)
	id := mustCreateStory(t, svc, "Illustrated")

	ctx := context.Background()
	ch, err := svc.InsertChapterWithOrdering(ctx, InsertChapterParams{StoryID: id, Title: "One", Content: "a"})
	require.NoError(t, err)

	img, err := svc.AttachImage(ctx, id, &ch.ID, "covers/one.png")
	require.NoError(t, err)
	require.NotNil(t, img.ChapterID)
	assert.Equal(t, ch.ID, *img.ChapterID)

	// A chapter from another story is rejected.
	other := mustCreateStory(t, svc, "Other")
	_, err = svc.AttachImage(ctx, other, &ch.ID, "covers/two.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestQueryStoryGraph(t *testing.T) {
	svc, _, syncer := newTestService(t)
	id := mustCreateStory(t, svc, "Queried")
	syncer.answer = "Alice is the protagonist."

	answer, err := svc.QueryStoryGraph(context.Background(), id, "who is the protagonist?", 10)
	require.NoError(t, err)
	assert.Equal(t, "Alice is the protagonist.", answer)

	_, err = svc.QueryStoryGraph(context.Background(), 999, "anyone?", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
