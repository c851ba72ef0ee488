package builtin

import (
	"context"
	"encoding/json"

	apperrors "github.com/talemachine/talemachine/internal/errors"
	"github.com/talemachine/talemachine/internal/mutation"
)

// QueryStoryGraphTool answers questions about story entities and their
// relationships from the knowledge graph. Read-only, never gated.
type QueryStoryGraphTool struct {
	Service *mutation.Service
}

type queryStoryGraphInput struct {
	StoryID  int64  `json:"story_id"`
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

func (t *QueryStoryGraphTool) Name() string { return "query_story_graph" }

func (t *QueryStoryGraphTool) Description() string {
	return "Answer a question about the story's characters, places, and their relationships using the story knowledge graph."
}

func (t *QueryStoryGraphTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"story_id": map[string]interface{}{"type": "integer", "description": "Story ID."},
			"question": map[string]interface{}{"type": "string", "description": "Natural language question about the story world."},
			"top_k":    map[string]interface{}{"type": "integer", "description": "Maximum graph rows to consider. Defaults to 10."},
		},
		"required": []string{"story_id", "question"},
	}
}

func (t *QueryStoryGraphTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in queryStoryGraphInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, apperrors.InvalidInput("malformed query_story_graph input")
	}

	answer, err := t.Service.QueryStoryGraph(ctx, in.StoryID, in.Question, in.TopK)
	if err != nil {
		return nil, err
	}
	return marshalResult(map[string]any{"answer": answer})
}
