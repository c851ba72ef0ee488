// Package mutation is the single entry point for writes that fan out
// across the relational store and the story graph.
package mutation

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/talemachine/talemachine/internal/errors"
	"github.com/talemachine/talemachine/internal/graph"
	"github.com/talemachine/talemachine/internal/ordering"
	"github.com/talemachine/talemachine/internal/store"
	"github.com/talemachine/talemachine/internal/story"
)

// GraphSyncer is the slice of graph behavior the service needs.
// *graph.Sync is the production implementation.
type GraphSyncer interface {
	EnsureNamespace(ctx context.Context, name string) (string, error)
	DropNamespace(ctx context.Context, name string) error
	ExtractAndUpsert(ctx context.Context, database, text string) ([]graph.Entity, error)
	AnswerQuery(ctx context.Context, database, question string, topK int) (string, error)
}

type Service struct {
	store store.Store
	graph GraphSyncer
}

func NewService(st store.Store, gs GraphSyncer) *Service {
	return &Service{store: st, graph: gs}
}

type CreateStoryParams struct {
	Title  string
	Length string
	Genre  string
	Notes  string
}

// CreateStory reserves the story's graph namespace, then persists the
// row. A row insert failure tears the namespace back down so the name is
// not left orphaned.
func (s *Service) CreateStory(ctx context.Context, p CreateStoryParams) (story.Story, error) {
	if p.Title == "" {
		return story.Story{}, apperrors.InvalidInput("story title is required")
	}

	dbName, err := s.graph.EnsureNamespace(ctx, p.Title)
	if err != nil {
		return story.Story{}, err
	}

	created, err := s.store.InsertStory(ctx, story.Story{
		Title:             p.Title,
		GraphDatabaseName: dbName,
		Length:            p.Length,
		Genre:             p.Genre,
		Notes:             p.Notes,
	})
	if err != nil {
		if dropErr := s.graph.DropNamespace(ctx, dbName); dropErr != nil {
			slog.Warn("Failed to drop graph namespace after story insert failure", "database", dbName, "error", dropErr)
		}
		return story.Story{}, err
	}

	slog.Info("Created story", "story_id", created.ID, "graph_database", dbName)
	return created, nil
}

// DeleteStory removes the story row, its chapters, mappings, and images,
// then drops the graph namespace. The namespace drop is best-effort: the
// relational delete is the durability boundary here too.
func (s *Service) DeleteStory(ctx context.Context, id int64) (bool, error) {
	st, err := s.store.GetStoryByID(ctx, id)
	if err != nil {
		if apperrors.IsCategory(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	deleted, err := s.store.DeleteStory(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}

	if err := s.graph.DropNamespace(ctx, st.GraphDatabaseName); err != nil {
		slog.Warn("Failed to drop graph namespace for deleted story", "database", st.GraphDatabaseName, "error", err)
	}

	slog.Info("Deleted story", "story_id", id)
	return true, nil
}

type InsertChapterParams struct {
	StoryID         int64
	Title           string
	Content         string
	Summary         string
	AnchorChapterID *int64
	InsertAtStart   bool
}

// InsertChapterWithOrdering commits a chapter: compute the sort key,
// write the row, extract entities into the story graph, index them as
// mappings. The row write is the durability boundary; everything after it
// failing surfaces as an ErrPartialCommit warning alongside the saved
// chapter, and the chapter stays flagged for the resync loop.
func (s *Service) InsertChapterWithOrdering(ctx context.Context, p InsertChapterParams) (story.Chapter, error) {
	if p.Content == "" {
		return story.Chapter{}, apperrors.InvalidInput("chapter content is required")
	}
	if p.AnchorChapterID != nil && p.InsertAtStart {
		return story.Chapter{}, apperrors.InvalidInput("anchor chapter and insert_at_start are mutually exclusive")
	}

	st, err := s.store.GetStoryByID(ctx, p.StoryID)
	if err != nil {
		return story.Chapter{}, err
	}

	chapters, err := s.store.GetChaptersOrdered(ctx, p.StoryID)
	if err != nil {
		return story.Chapter{}, err
	}

	sortOrder, err := s.computeSortOrder(chapters, p)
	if err != nil {
		return story.Chapter{}, err
	}

	inserted, err := s.store.InsertChapter(ctx, story.Chapter{
		StoryID:   p.StoryID,
		Title:     p.Title,
		Content:   p.Content,
		Summary:   p.Summary,
		SortOrder: sortOrder,
	})
	if err != nil {
		return story.Chapter{}, err
	}

	if err := s.syncChapterGraph(ctx, st.GraphDatabaseName, inserted); err != nil {
		slog.Warn("Chapter saved but graph sync failed",
			"chapter_id", inserted.ID,
			"story_id", p.StoryID,
			"error", err,
		)
		return inserted, apperrors.PartialCommit(err)
	}

	inserted.GraphSynced = true
	slog.Info("Committed chapter", "chapter_id", inserted.ID, "story_id", p.StoryID, "sort_order", sortOrder)
	return inserted, nil
}

func (s *Service) computeSortOrder(chapters []story.Chapter, p InsertChapterParams) (float64, error) {
	keys := make([]float64, len(chapters))
	for i, ch := range chapters {
		keys[i] = ch.SortOrder
	}

	switch {
	case p.InsertAtStart:
		return ordering.PrependKey(keys), nil
	case p.AnchorChapterID != nil:
		var anchorKey float64
		found := false
		for _, ch := range chapters {
			if ch.ID == *p.AnchorChapterID {
				anchorKey = ch.SortOrder
				found = true
				break
			}
		}
		if !found {
			return 0, apperrors.NotFound(fmt.Sprintf("anchor chapter %d not found in story %d", *p.AnchorChapterID, p.StoryID))
		}
		return ordering.BetweenKey(anchorKey, keys)
	default:
		return ordering.AppendKey(keys), nil
	}
}

// syncChapterGraph performs the secondary write: extraction, mapping
// rows, and the synced flag. Any failure leaves graph_synced false.
func (s *Service) syncChapterGraph(ctx context.Context, database string, ch story.Chapter) error {
	entities, err := s.graph.ExtractAndUpsert(ctx, database, ch.Content)
	if err != nil {
		return err
	}

	for _, e := range entities {
		if err := s.store.InsertMapping(ctx, story.NodeMapping{
			NodeLabel: e.Label,
			NodeName:  e.Name,
			ChapterID: ch.ID,
		}); err != nil {
			return apperrors.Wrap(err, fmt.Sprintf("index entity %s/%s", e.Label, e.Name))
		}
	}

	return s.store.SetGraphSynced(ctx, ch.ID, true)
}

// ResyncChapter retries the graph sync for a chapter whose first attempt
// failed. Used by the maintenance loop and safe to repeat: graph upserts
// merge and mapping inserts are additive.
func (s *Service) ResyncChapter(ctx context.Context, chapterID int64) error {
	ch, err := s.store.GetChapterByID(ctx, chapterID)
	if err != nil {
		return err
	}
	st, err := s.store.GetStoryByID(ctx, ch.StoryID)
	if err != nil {
		return err
	}
	return s.syncChapterGraph(ctx, st.GraphDatabaseName, ch)
}

// QueryStoryGraph answers a natural language question against one
// story's graph.
func (s *Service) QueryStoryGraph(ctx context.Context, storyID int64, question string, topK int) (string, error) {
	if question == "" {
		return "", apperrors.InvalidInput("question is required")
	}
	st, err := s.store.GetStoryByID(ctx, storyID)
	if err != nil {
		return "", err
	}
	return s.graph.AnswerQuery(ctx, st.GraphDatabaseName, question, topK)
}

// AttachImage links an image to a story and optionally to one chapter.
func (s *Service) AttachImage(ctx context.Context, storyID int64, chapterID *int64, imagePath string) (story.Image, error) {
	if imagePath == "" {
		return story.Image{}, apperrors.InvalidInput("image path is required")
	}
	if _, err := s.store.GetStoryByID(ctx, storyID); err != nil {
		return story.Image{}, err
	}
	if chapterID != nil {
		ch, err := s.store.GetChapterByID(ctx, *chapterID)
		if err != nil {
			return story.Image{}, err
		}
		if ch.StoryID != storyID {
			return story.Image{}, apperrors.InvalidInput(fmt.Sprintf("chapter %d belongs to a different story", *chapterID))
		}
	}

	return s.store.InsertImage(ctx, story.Image{
		StoryID:   storyID,
		ChapterID: chapterID,
		ImagePath: imagePath,
	})
}
