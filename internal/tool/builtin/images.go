package builtin

import (
	"context"
	"encoding/json"

	apperrors "github.com/talemachine/talemachine/internal/errors"
	"github.com/talemachine/talemachine/internal/mutation"
)

// AttachImageTool links an image to a story. Sensitive: the reviewer
// decides the final chapter_id at approval time, overriding whatever the
// agent proposed.
type AttachImageTool struct {
	Service *mutation.Service
}

type attachImageInput struct {
	StoryID   int64  `json:"story_id"`
	ChapterID *int64 `json:"chapter_id"`
	ImagePath string `json:"image_path"`
}

func (t *AttachImageTool) Name() string { return "attach_image" }

func (t *AttachImageTool) Description() string {
	return "Attach an image to the story, optionally linked to one chapter. The reviewer may pick a different chapter when approving."
}

func (t *AttachImageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"story_id":   map[string]interface{}{"type": "integer", "description": "Story ID."},
			"chapter_id": map[string]interface{}{"type": "integer", "description": "Chapter to link the image to. Omit for a story-level image."},
			"image_path": map[string]interface{}{"type": "string", "description": "Path or URL of the stored image."},
		},
		"required": []string{"story_id", "image_path"},
	}
}

func (t *AttachImageTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in attachImageInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, apperrors.InvalidInput("malformed attach_image input")
	}

	img, err := t.Service.AttachImage(ctx, in.StoryID, in.ChapterID, in.ImagePath)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"id":         img.ID,
		"story_id":   img.StoryID,
		"image_path": img.ImagePath,
	}
	if img.ChapterID != nil {
		payload["chapter_id"] = *img.ChapterID
	}
	return marshalResult(payload)
}
