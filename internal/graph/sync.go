package graph

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/talemachine/talemachine/internal/errors"
)

// Sync couples the extractor and the store: chapter text goes in, graph
// structure lands in the story's database, and the entity pairs that were
// written come back for relational indexing.
type Sync struct {
	store     Store
	extractor Extractor
}

func NewSync(store Store, extractor Extractor) *Sync {
	return &Sync{store: store, extractor: extractor}
}

// EnsureNamespace creates the story's graph database, failing with a
// conflict when the sanitized name is already taken by another story.
func (s *Sync) EnsureNamespace(ctx context.Context, name string) (string, error) {
	final := SanitizeDatabaseName(name)

	exists, err := s.store.DatabaseExists(ctx, final)
	if err != nil {
		return "", err
	}
	if exists {
		return "", apperrors.Conflict(fmt.Sprintf("graph database %q already exists", final))
	}

	return s.store.EnsureDatabase(ctx, final)
}

// DropNamespace removes a story's graph database. Dropping a database
// that no longer exists is not an error.
func (s *Sync) DropNamespace(ctx context.Context, name string) error {
	return s.store.DropDatabase(ctx, name)
}

// ExtractAndUpsert runs entity extraction over text and merges the result
// into the story's graph. An empty extraction is a success with no
// entities; plenty of chapters introduce nothing new.
func (s *Sync) ExtractAndUpsert(ctx context.Context, database, text string) ([]Entity, error) {
	g, err := s.extractor.Extract(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(g.Nodes) == 0 && len(g.Relationships) == 0 {
		slog.Debug("Extraction produced no graph content", "database", database)
		return nil, nil
	}

	if err := s.store.UpsertGraph(ctx, database, g); err != nil {
		return nil, err
	}

	entities := make([]Entity, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		entities = append(entities, Entity{Label: n.Label, Name: n.Name})
	}
	slog.Info("Synced chapter to graph", "database", database, "nodes", len(g.Nodes), "relationships", len(g.Relationships))
	return entities, nil
}

// AnswerQuery answers a natural language question against a story graph:
// the live schema is fetched so generated Cypher targets labels that
// actually exist, the query runs read-only, and the rows are phrased back
// into prose.
func (s *Sync) AnswerQuery(ctx context.Context, database, question string, topK int) (string, error) {
	if topK <= 0 {
		topK = 10
	}

	schema, err := s.store.Schema(ctx, database)
	if err != nil {
		return "", err
	}

	query, err := s.extractor.GenerateCypher(ctx, schema, question, topK)
	if err != nil {
		return "", err
	}
	slog.Debug("Generated cypher", "database", database, "query", query)

	rows, err := s.store.RunCypher(ctx, database, query)
	if err != nil {
		return "", err
	}

	return s.extractor.ComposeAnswer(ctx, question, rows)
}
