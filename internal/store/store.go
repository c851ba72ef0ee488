// Package store persists stories, chapters, entity mappings, and images.
//
// Two implementations exist: Postgres (production) and an in-memory store
// used by tests and by `serve --memory`. Both honor the same invariants:
// sort_order unique per story, cascade deletes, additive-only mappings.
package store

import (
	"context"

	"github.com/talemachine/talemachine/internal/story"
)

type StoryStore interface {
	// InsertStory persists a story whose GraphDatabaseName is already
	// sanitized and reserved. Fails with ErrConflict on a name collision.
	InsertStory(ctx context.Context, s story.Story) (story.Story, error)
	GetStoryByID(ctx context.Context, id int64) (story.Story, error)
	GetAllStories(ctx context.Context) ([]story.Story, error)
	// DeleteStory removes the story and cascades to chapters, mappings,
	// and images. Returns false if the id does not exist.
	DeleteStory(ctx context.Context, id int64) (bool, error)
	UpdateStoryTitle(ctx context.Context, id int64, title string) (story.Story, error)
}

type ChapterStore interface {
	// InsertChapter validates the owning story exists and persists the row
	// atomically: either the chapter exists with all fields set, or nothing is.
	InsertChapter(ctx context.Context, ch story.Chapter) (story.Chapter, error)
	GetChapterByID(ctx context.Context, id int64) (story.Chapter, error)
	// GetChaptersOrdered returns the story's chapters sorted ascending by
	// sort_order; this is the canonical reading order.
	GetChaptersOrdered(ctx context.Context, storyID int64) ([]story.Chapter, error)
	// GetChapterByTitle is an exact, case-sensitive match.
	GetChapterByTitle(ctx context.Context, storyID int64, title string) (story.Chapter, error)
	GetChapterSummaries(ctx context.Context, storyID int64) ([]story.ChapterSummary, error)
	// DeleteChapter cascades to mappings. Deleting a missing id returns
	// (false, nil): delete is deliberately idempotent.
	DeleteChapter(ctx context.Context, id int64) (bool, error)
	SetGraphSynced(ctx context.Context, id int64, synced bool) error
	// ListUnsyncedChapters returns chapters whose graph extraction failed,
	// oldest first, for the maintenance resync loop.
	ListUnsyncedChapters(ctx context.Context, limit int) ([]story.Chapter, error)
}

type MappingStore interface {
	// InsertMapping is additive only; re-inserting an existing triple is a no-op.
	InsertMapping(ctx context.Context, m story.NodeMapping) error
	GetMappingsByChapter(ctx context.Context, chapterID int64) ([]story.NodeMapping, error)
	GetMappingsByEntity(ctx context.Context, label, name string) ([]story.NodeMapping, error)
}

type ImageStore interface {
	InsertImage(ctx context.Context, img story.Image) (story.Image, error)
	GetImagesByStory(ctx context.Context, storyID int64) ([]story.Image, error)
}

// Store bundles the four repositories behind one handle.
type Store interface {
	StoryStore
	ChapterStore
	MappingStore
	ImageStore
}
