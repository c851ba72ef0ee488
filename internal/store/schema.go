package store

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS stories (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		graph_database_name TEXT NOT NULL UNIQUE,
		length TEXT NOT NULL DEFAULT '',
		genre TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS chapters (
		id BIGSERIAL PRIMARY KEY,
		story_id BIGINT NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		sort_order DOUBLE PRECISION NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		graph_synced BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (story_id, sort_order)
	)`,
	`CREATE TABLE IF NOT EXISTS chapter_node_mappings (
		chapter_id BIGINT NOT NULL REFERENCES chapters(id) ON DELETE CASCADE,
		node_label TEXT NOT NULL,
		node_name TEXT NOT NULL,
		PRIMARY KEY (chapter_id, node_label, node_name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chapter_node_mappings_entity
		ON chapter_node_mappings (node_label, node_name)`,
	`CREATE TABLE IF NOT EXISTS images (
		id BIGSERIAL PRIMARY KEY,
		story_id BIGINT NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
		chapter_id BIGINT REFERENCES chapters(id) ON DELETE SET NULL,
		image_path TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema applies the schema inside one transaction. Statements are
// idempotent so repeated startup is safe.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
