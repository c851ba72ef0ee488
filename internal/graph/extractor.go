package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/talemachine/talemachine/internal/errors"
	"github.com/talemachine/talemachine/internal/model"
	"github.com/talemachine/talemachine/internal/model/contract"
)

// Extractor turns chapter prose into graph structure and natural language
// questions into Cypher.
type Extractor interface {
	Extract(ctx context.Context, text string) (Graph, error)
	GenerateCypher(ctx context.Context, schema, question string, topK int) (string, error)
	ComposeAnswer(ctx context.Context, question string, rows []map[string]any) (string, error)
}

// ModelExtractor implements Extractor over a chat model. Results outside
// the closed vocabulary are dropped rather than treated as errors; models
// invent labels often enough that failing hard would block chapter saves.
type ModelExtractor struct {
	provider model.Provider
	model    string
}

func NewModelExtractor(provider model.Provider, modelName string) *ModelExtractor {
	return &ModelExtractor{provider: provider, model: modelName}
}

const extractionSystemPrompt = `You are a knowledge graph extraction engine for a storytelling database.
Extract entities and relationships from the story text you are given.

Allowed node labels (use NO other labels):
%s

Allowed relationship types (use NO other types):
%s

Node properties you may set on any node:
%s

Relationship properties you may set on any relationship:
%s

Respond with a single JSON object and nothing else, shaped exactly like:
{"nodes":[{"label":"Person","name":"Alice","properties":{"role":"Protagonist"}}],"relationships":[{"source_label":"Person","source_name":"Alice","type":"FRIEND_OF","target_label":"Person","target_name":"Emily","properties":{"context":"childhood friends"}}]}

Use the node "name" as the primary identifier. Omit the properties field when you have nothing to add.`

func (e *ModelExtractor) Extract(ctx context.Context, text string) (Graph, error) {
	system := fmt.Sprintf(extractionSystemPrompt,
		strings.Join(NodeLabels, ", "),
		strings.Join(RelationshipTypes, ", "),
		"  - "+strings.Join(NodeProperties, "\n  - "),
		"  - "+strings.Join(RelationshipProperties, "\n  - "),
	)

	resp, err := e.provider.Generate(ctx, contract.CompletionRequest{
		Model:  e.model,
		System: system,
		Messages: []contract.Message{
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return Graph{}, apperrors.Wrap(apperrors.MapExternal(err), "entity extraction request")
	}

	var raw struct {
		Nodes         []Node         `json:"nodes"`
		Relationships []Relationship `json:"relationships"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &raw); err != nil {
		return Graph{}, fmt.Errorf("parse extraction output: %v: %w", err, apperrors.ErrInvalidModelOutput)
	}

	return filterGraph(Graph{Nodes: raw.Nodes, Relationships: raw.Relationships}), nil
}

// filterGraph enforces the closed vocabulary. Relationships survive only
// when their type and both endpoint labels are allowed.
func filterGraph(g Graph) Graph {
	var out Graph
	for _, n := range g.Nodes {
		if n.Name == "" {
			continue
		}
		if !AllowedNodeLabel(n.Label) {
			slog.Debug("Dropped node with disallowed label", "label", n.Label, "name", n.Name)
			continue
		}
		out.Nodes = append(out.Nodes, n)
	}
	for _, r := range g.Relationships {
		if r.SourceName == "" || r.TargetName == "" {
			continue
		}
		if !AllowedRelationshipType(r.Type) || !AllowedNodeLabel(r.SourceLabel) || !AllowedNodeLabel(r.TargetLabel) {
			slog.Debug("Dropped relationship outside vocabulary", "type", r.Type)
			continue
		}
		out.Relationships = append(out.Relationships, r)
	}
	return out
}

const cypherSystemPrompt = `You translate questions about a story into Cypher queries for Neo4j.
The database schema is:

%s

Rules:
- Return a single read-only Cypher query and nothing else. No explanation, no markdown.
- Never use CREATE, MERGE, SET, DELETE or any other write clause.
- Limit results to at most %d rows with LIMIT.`

func (e *ModelExtractor) GenerateCypher(ctx context.Context, schema, question string, topK int) (string, error) {
	resp, err := e.provider.Generate(ctx, contract.CompletionRequest{
		Model:  e.model,
		System: fmt.Sprintf(cypherSystemPrompt, schema, topK),
		Messages: []contract.Message{
			{Role: "user", Content: question},
		},
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.MapExternal(err), "cypher generation request")
	}

	query := strings.TrimSpace(stripCodeFence(resp.Content))
	if query == "" {
		return "", fmt.Errorf("empty cypher output: %w", apperrors.ErrInvalidModelOutput)
	}
	if err := checkReadOnly(query); err != nil {
		return "", err
	}
	return query, nil
}

func checkReadOnly(query string) error {
	upper := strings.ToUpper(query)
	for _, clause := range []string{"CREATE ", "MERGE ", "DELETE ", "SET ", "REMOVE ", "DROP "} {
		if strings.Contains(upper, clause) {
			return fmt.Errorf("generated cypher contains write clause %q: %w", strings.TrimSpace(clause), apperrors.ErrInvalidModelOutput)
		}
	}
	return nil
}

func (e *ModelExtractor) ComposeAnswer(ctx context.Context, question string, rows []map[string]any) (string, error) {
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return "", apperrors.Internal("marshal query rows")
	}

	resp, err := e.provider.Generate(ctx, contract.CompletionRequest{
		Model:  e.model,
		System: "You answer questions about a story using only the database rows provided. If the rows do not contain the answer, say so plainly.",
		Messages: []contract.Message{
			{Role: "user", Content: fmt.Sprintf("Question: %s\n\nDatabase rows:\n%s", question, rowsJSON)},
		},
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.MapExternal(err), "answer composition request")
	}
	return strings.TrimSpace(resp.Content), nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
