package graph

import (
	"context"
	"testing"

	apperrors "github.com/talemachine/talemachine/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	databases map[string]bool
	upserts   map[string][]Graph
	dropped   []string
	queries   []string
	rows      []map[string]any
	schema    string
}

func newFakeStore() *fakeStore {
	return &fakeStore{databases: map[string]bool{}, upserts: map[string][]Graph{}}
}

func (s *fakeStore) EnsureDatabase(_ context.Context, name string) (string, error) {
	s.databases[name] = true
	return name, nil
}

func (s *fakeStore) DropDatabase(_ context.Context, name string) error {
	delete(s.databases, name)
	s.dropped = append(s.dropped, name)
	return nil
}

func (s *fakeStore) DatabaseExists(_ context.Context, name string) (bool, error) {
	return s.databases[name], nil
}

func (s *fakeStore) UpsertGraph(_ context.Context, database string, g Graph) error {
	s.upserts[database] = append(s.upserts[database], g)
	return nil
}

func (s *fakeStore) RunCypher(_ context.Context, _, query string) ([]map[string]any, error) {
	s.queries = append(s.queries, query)
	return s.rows, nil
}

func (s *fakeStore) Schema(_ context.Context, _ string) (string, error) {
	return s.schema, nil
}

func (s *fakeStore) Close(_ context.Context) error { return nil }

type fakeExtractor struct {
	graph    Graph
	cypher   string
	answer   string
	question string
}

func (e *fakeExtractor) Extract(_ context.Context, _ string) (Graph, error) {
	return e.graph, nil
}

func (e *fakeExtractor) GenerateCypher(_ context.Context, _, question string, _ int) (string, error) {
	e.question = question
	return e.cypher, nil
}

func (e *fakeExtractor) ComposeAnswer(_ context.Context, _ string, _ []map[string]any) (string, error) {
	return e.answer, nil
}

func TestEnsureNamespaceSanitizes(t *testing.T) {
	store := newFakeStore()
	sync := NewSync(store, &fakeExtractor{})

	final, err := sync.EnsureNamespace(context.Background(), "My Story!")
	require.NoError(t, err)
	assert.Equal(t, "mystory", final)
	assert.True(t, store.databases["mystory"])
}

func TestEnsureNamespaceConflicts(t *testing.T) {
	store := newFakeStore()
	store.databases["mystory"] = true
	sync := NewSync(store, &fakeExtractor{})

	_, err := sync.EnsureNamespace(context.Background(), "My Story")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestExtractAndUpsertReturnsEntities(t *testing.T) {
	store := newFakeStore()
	extractor := &fakeExtractor{graph: Graph{
		Nodes: []Node{
			{Label: "Person", Name: "Alice"},
			{Label: "Location", Name: "Elmwood Park"},
		},
		Relationships: []Relationship{
			{SourceLabel: "Person", SourceName: "Alice", Type: "VISITS", TargetLabel: "Location", TargetName: "Elmwood Park"},
		},
	}}
	sync := NewSync(store, extractor)

	entities, err := sync.ExtractAndUpsert(context.Background(), "mystory", "chapter text")
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, Entity{Label: "Person", Name: "Alice"}, entities[0])
	require.Len(t, store.upserts["mystory"], 1)
}

func TestExtractAndUpsertEmptyExtractionSkipsUpsert(t *testing.T) {
	store := newFakeStore()
	sync := NewSync(store, &fakeExtractor{})

	entities, err := sync.ExtractAndUpsert(context.Background(), "mystory", "nothing new here")
	require.NoError(t, err)
	assert.Empty(t, entities)
	assert.Empty(t, store.upserts)
}

func TestAnswerQueryPipeline(t *testing.T) {
	store := newFakeStore()
	store.schema = "Node labels present: Person"
	store.rows = []map[string]any{{"p.name": "Alice"}}
	extractor := &fakeExtractor{cypher: "MATCH (p:Person) RETURN p.name LIMIT 10", answer: "Alice is in the story."}
	sync := NewSync(store, extractor)

	answer, err := sync.AnswerQuery(context.Background(), "mystory", "who is in the story?", 0)
	require.NoError(t, err)
	assert.Equal(t, "Alice is in the story.", answer)
	require.Len(t, store.queries, 1)
	assert.Equal(t, extractor.cypher, store.queries[0])
	assert.Equal(t, "who is in the story?", extractor.question)
}
