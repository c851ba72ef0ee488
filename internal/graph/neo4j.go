package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	apperrors "github.com/talemachine/talemachine/internal/errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jStore implements Store over the bolt driver. Administrative
// statements run against the "system" database, everything else against
// the per-story database named in the call.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jStore(ctx context.Context, uri, username, password string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.MapExternal(err), "create neo4j driver")
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.MapExternal(err), "verify neo4j connectivity")
	}
	return &Neo4jStore{driver: driver}, nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// EnsureDatabase sanitizes name and creates the database if missing.
// Database names cannot be parameterized in Cypher, so the sanitized name
// is interpolated directly; SanitizeDatabaseName guarantees it is safe.
func (s *Neo4jStore) EnsureDatabase(ctx context.Context, name string) (string, error) {
	final := SanitizeDatabaseName(name)
	if final != name {
		slog.Debug("Sanitized graph database name", "requested", name, "final", final)
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "system"})
	defer session.Close(ctx)

	_, err := session.Run(ctx, fmt.Sprintf("CREATE DATABASE %s IF NOT EXISTS WAIT", final), nil)
	if err != nil {
		return "", apperrors.Wrap(apperrors.MapExternal(err), fmt.Sprintf("create graph database %q", final))
	}
	return final, nil
}

func (s *Neo4jStore) DropDatabase(ctx context.Context, name string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "system"})
	defer session.Close(ctx)

	_, err := session.Run(ctx, fmt.Sprintf("DROP DATABASE %s IF EXISTS WAIT", name), nil)
	if err != nil {
		return apperrors.Wrap(apperrors.MapExternal(err), fmt.Sprintf("drop graph database %q", name))
	}
	return nil
}

func (s *Neo4jStore) DatabaseExists(ctx context.Context, name string) (bool, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "system"})
	defer session.Close(ctx)

	result, err := session.Run(ctx, "SHOW DATABASES", nil)
	if err != nil {
		return false, apperrors.Wrap(apperrors.MapExternal(err), "list graph databases")
	}
	for result.Next(ctx) {
		if dbName, ok := result.Record().Get("name"); ok && dbName == name {
			return true, nil
		}
	}
	if err := result.Err(); err != nil {
		return false, apperrors.MapExternal(err)
	}
	return false, nil
}

// UpsertGraph merges nodes on (label, name) and relationships between
// them. Labels and relationship types come from the closed vocabulary so
// interpolating them is safe; names and properties go through parameters.
func (s *Neo4jStore) UpsertGraph(ctx context.Context, database string, g Graph) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, n := range g.Nodes {
			query := fmt.Sprintf("MERGE (n:`%s` {name: $name}) SET n += $props", n.Label)
			props := n.Properties
			if props == nil {
				props = map[string]any{}
			}
			if _, err := tx.Run(ctx, query, map[string]any{"name": n.Name, "props": props}); err != nil {
				return nil, err
			}
		}
		for _, r := range g.Relationships {
			query := fmt.Sprintf(
				"MATCH (a:`%s` {name: $source}) MATCH (b:`%s` {name: $target}) MERGE (a)-[rel:`%s`]->(b) SET rel += $props",
				r.SourceLabel, r.TargetLabel, r.Type,
			)
			props := r.Properties
			if props == nil {
				props = map[string]any{}
			}
			if _, err := tx.Run(ctx, query, map[string]any{"source": r.SourceName, "target": r.TargetName, "props": props}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return apperrors.Wrap(apperrors.MapExternal(err), "upsert graph")
	}
	return nil
}

func (s *Neo4jStore) RunCypher(ctx context.Context, database, query string) ([]map[string]any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: database})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.MapExternal(err), "run cypher")
	}

	var rows []map[string]any
	for result.Next(ctx) {
		record := result.Record()
		row := make(map[string]any, len(record.Keys))
		for _, key := range record.Keys {
			value, _ := record.Get(key)
			row[key] = value
		}
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.MapExternal(err)
	}
	return rows, nil
}

// Schema summarizes what is actually present in the database, as opposed
// to the full allowed vocabulary. The query planner prompt needs the real
// contents or it writes Cypher against labels that do not exist yet.
func (s *Neo4jStore) Schema(ctx context.Context, database string) (string, error) {
	labels, err := s.collectStrings(ctx, database, "CALL db.labels() YIELD label RETURN label", "label")
	if err != nil {
		return "", err
	}
	relTypes, err := s.collectStrings(ctx, database, "CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType", "relationshipType")
	if err != nil {
		return "", err
	}
	props, err := s.collectStrings(ctx, database, "CALL db.propertyKeys() YIELD propertyKey RETURN propertyKey", "propertyKey")
	if err != nil {
		return "", err
	}

	sort.Strings(labels)
	sort.Strings(relTypes)
	sort.Strings(props)

	var b strings.Builder
	b.WriteString("Node labels present: " + strings.Join(labels, ", ") + "\n")
	b.WriteString("Relationship types present: " + strings.Join(relTypes, ", ") + "\n")
	b.WriteString("Property keys present: " + strings.Join(props, ", ") + "\n")
	return b.String(), nil
}

func (s *Neo4jStore) collectStrings(ctx context.Context, database, query, key string) ([]string, error) {
	rows, err := s.RunCypher(ctx, database, query)
	if err != nil {
		return nil, err
	}
	var values []string
	for _, row := range rows {
		if v, ok := row[key].(string); ok {
			values = append(values, v)
		}
	}
	return values, nil
}
