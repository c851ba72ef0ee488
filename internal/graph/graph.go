// Package graph maintains one Neo4j database per story and fills it with
// entities and relationships extracted from chapter text by a language
// model. Every story graph shares the same closed label vocabulary.
package graph

import "context"

type Node struct {
	Label      string         `json:"label"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

type Relationship struct {
	SourceLabel string         `json:"source_label"`
	SourceName  string         `json:"source_name"`
	Type        string         `json:"type"`
	TargetLabel string         `json:"target_label"`
	TargetName  string         `json:"target_name"`
	Properties  map[string]any `json:"properties,omitempty"`
}

type Graph struct {
	Nodes         []Node
	Relationships []Relationship
}

// Entity is a (label, name) pair for a node that landed in the graph,
// reported back so the relational side can index it.
type Entity struct {
	Label string
	Name  string
}

// Store is the graph backend. Database names passed in are assumed to be
// already sanitized; EnsureDatabase returns the final name it settled on.
type Store interface {
	EnsureDatabase(ctx context.Context, name string) (string, error)
	DropDatabase(ctx context.Context, name string) error
	DatabaseExists(ctx context.Context, name string) (bool, error)
	UpsertGraph(ctx context.Context, database string, g Graph) error
	RunCypher(ctx context.Context, database, query string) ([]map[string]any, error)
	Schema(ctx context.Context, database string) (string, error)
	Close(ctx context.Context) error
}
