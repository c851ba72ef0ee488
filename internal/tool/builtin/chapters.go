// Package builtin provides the story tools exposed to the agent.
package builtin

import (
	"context"
	"encoding/json"

	apperrors "github.com/talemachine/talemachine/internal/errors"
	"github.com/talemachine/talemachine/internal/mutation"
	"github.com/talemachine/talemachine/internal/store"
	"github.com/talemachine/talemachine/internal/story"
)

func chapterPayload(ch story.Chapter) map[string]any {
	return map[string]any{
		"id":           ch.ID,
		"story_id":     ch.StoryID,
		"title":        ch.Title,
		"content":      ch.Content,
		"summary":      ch.Summary,
		"sort_order":   ch.SortOrder,
		"graph_synced": ch.GraphSynced,
	}
}

func marshalResult(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Internal("marshal tool result")
	}
	return b, nil
}

// SaveChapterTool commits a chapter through the mutation service. It is
// in the sensitive set, so it only ever runs after an approved resume.
type SaveChapterTool struct {
	Service *mutation.Service
}

type saveChapterInput struct {
	Content           string `json:"content"`
	StoryID           int64  `json:"story_id"`
	Title             string `json:"title"`
	PreviousChapterID *int64 `json:"previous_chapter_id"`
	InsertAtStart     bool   `json:"insert_at_start"`
	Summary           string `json:"summary"`
}

func (t *SaveChapterTool) Name() string { return "save_chapter" }

func (t *SaveChapterTool) Description() string {
	return "Save a new chapter to the story. Place it at the end by default, after a specific chapter via previous_chapter_id, or first via insert_at_start."
}

func (t *SaveChapterTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content":             map[string]interface{}{"type": "string", "description": "Full chapter text."},
			"story_id":            map[string]interface{}{"type": "integer", "description": "ID of the story the chapter belongs to."},
			"title":               map[string]interface{}{"type": "string", "description": "Chapter title."},
			"previous_chapter_id": map[string]interface{}{"type": "integer", "description": "Insert the new chapter immediately after this one."},
			"insert_at_start":     map[string]interface{}{"type": "boolean", "description": "Insert the new chapter before all existing ones."},
			"summary":             map[string]interface{}{"type": "string", "description": "One-paragraph summary used in chapter listings."},
		},
		"required": []string{"content", "story_id", "title"},
	}
}

func (t *SaveChapterTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in saveChapterInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, apperrors.InvalidInput("malformed save_chapter input")
	}

	ch, err := t.Service.InsertChapterWithOrdering(ctx, mutation.InsertChapterParams{
		StoryID:         in.StoryID,
		Title:           in.Title,
		Content:         in.Content,
		Summary:         in.Summary,
		AnchorChapterID: in.PreviousChapterID,
		InsertAtStart:   in.InsertAtStart,
	})
	if err != nil {
		if apperrors.IsCategory(err, apperrors.ErrPartialCommit) {
			payload := chapterPayload(ch)
			payload["warning"] = "chapter saved but its entity index is stale; graph sync will be retried"
			result, mErr := marshalResult(payload)
			if mErr != nil {
				return nil, mErr
			}
			return result, err
		}
		return nil, err
	}

	return marshalResult(chapterPayload(ch))
}

// GetChapterByIDTool fetches one chapter with its full content.
type GetChapterByIDTool struct {
	Store store.ChapterStore
}

func (t *GetChapterByIDTool) Name() string { return "get_chapter_by_id" }

func (t *GetChapterByIDTool) Description() string {
	return "Fetch a single chapter, including its full content, by chapter ID."
}

func (t *GetChapterByIDTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"chapter_id": map[string]interface{}{"type": "integer", "description": "Chapter ID."},
		},
		"required": []string{"chapter_id"},
	}
}

func (t *GetChapterByIDTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in struct {
		ChapterID int64 `json:"chapter_id"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, apperrors.InvalidInput("malformed get_chapter_by_id input")
	}

	ch, err := t.Store.GetChapterByID(ctx, in.ChapterID)
	if err != nil {
		if apperrors.IsCategory(err, apperrors.ErrNotFound) {
			return json.RawMessage("null"), nil
		}
		return nil, err
	}
	return marshalResult(chapterPayload(ch))
}

// GetChapterByTitleTool fetches a chapter by exact title within a story.
type GetChapterByTitleTool struct {
	Store store.ChapterStore
}

func (t *GetChapterByTitleTool) Name() string { return "get_chapter_by_title" }

func (t *GetChapterByTitleTool) Description() string {
	return "Fetch a chapter by its exact title within one story. The match is case-sensitive."
}

func (t *GetChapterByTitleTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"story_id": map[string]interface{}{"type": "integer", "description": "ID of the story to search in."},
			"title":    map[string]interface{}{"type": "string", "description": "Exact chapter title."},
		},
		"required": []string{"story_id", "title"},
	}
}

func (t *GetChapterByTitleTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in struct {
		StoryID int64  `json:"story_id"`
		Title   string `json:"title"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, apperrors.InvalidInput("malformed get_chapter_by_title input")
	}

	ch, err := t.Store.GetChapterByTitle(ctx, in.StoryID, in.Title)
	if err != nil {
		if apperrors.IsCategory(err, apperrors.ErrNotFound) {
			return json.RawMessage("null"), nil
		}
		return nil, err
	}
	return marshalResult(chapterPayload(ch))
}

// GetAllChaptersTool lists a story's chapters in reading order without
// their bodies.
type GetAllChaptersTool struct {
	Store store.ChapterStore
}

func (t *GetAllChaptersTool) Name() string { return "get_all_chapters_by_story_id" }

func (t *GetAllChaptersTool) Description() string {
	return "List all chapters of a story in reading order. Returns id, title, summary, and sort_order only; use get_chapter_by_id for full content."
}

func (t *GetAllChaptersTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"story_id": map[string]interface{}{"type": "integer", "description": "Story ID."},
		},
		"required": []string{"story_id"},
	}
}

func (t *GetAllChaptersTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in struct {
		StoryID int64 `json:"story_id"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, apperrors.InvalidInput("malformed get_all_chapters_by_story_id input")
	}

	summaries, err := t.Store.GetChapterSummaries(ctx, in.StoryID)
	if err != nil {
		return nil, err
	}

	payload := make([]map[string]any, 0, len(summaries))
	for _, s := range summaries {
		payload = append(payload, map[string]any{
			"id":         s.ID,
			"title":      s.Title,
			"summary":    s.Summary,
			"sort_order": s.SortOrder,
		})
	}
	return marshalResult(payload)
}

// DeleteChapterTool removes a chapter and its entity mappings. Sensitive.
type DeleteChapterTool struct {
	Store store.ChapterStore
}

func (t *DeleteChapterTool) Name() string { return "delete_chapter_by_id" }

func (t *DeleteChapterTool) Description() string {
	return "Delete a chapter by ID. Returns whether a chapter was actually removed."
}

func (t *DeleteChapterTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"chapter_id": map[string]interface{}{"type": "integer", "description": "Chapter ID."},
		},
		"required": []string{"chapter_id"},
	}
}

func (t *DeleteChapterTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in struct {
		ChapterID int64 `json:"chapter_id"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, apperrors.InvalidInput("malformed delete_chapter_by_id input")
	}

	deleted, err := t.Store.DeleteChapter(ctx, in.ChapterID)
	if err != nil {
		return nil, err
	}
	return marshalResult(map[string]any{"deleted": deleted})
}
