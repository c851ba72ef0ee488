package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/talemachine/talemachine/internal/errors"
	"github.com/talemachine/talemachine/internal/model/contract"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
)

// PendingCall records where the conversation stopped when a tool call
// was intercepted: which call awaits its result and which calls from the
// same batch still need to run after resume.
type PendingCall struct {
	CallID    string               `json:"call_id"`
	Remaining []*contract.ToolCall `json:"remaining,omitempty"`
}

// Thread is one story-editing conversation. It is the externally
// checkpointed state that lets the pipeline suspend across process
// restarts and resume without losing context.
type Thread struct {
	ID          string             `json:"id"`
	StoryID     int64              `json:"story_id"`
	Messages    []contract.Message `json:"messages"`
	PendingCall *PendingCall       `json:"pending_call,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// TranscriptStore persists threads as one JSON file each under dir.
type TranscriptStore struct {
	dir string
	mu  sync.Mutex
}

func NewTranscriptStore(dir string) (*TranscriptStore, error) {
	threadsDir := filepath.Join(dir, "threads")
	if err := os.MkdirAll(threadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	return &TranscriptStore{dir: threadsDir}, nil
}

func (s *TranscriptStore) Create(storyID int64) (*Thread, error) {
	now := time.Now().UTC()
	t := &Thread{
		ID:        ulid.Make().String(),
		StoryID:   storyID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Save(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TranscriptStore) Load(threadID string) (*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if threadID == "" || filepath.Base(threadID) != threadID {
		return nil, apperrors.InvalidInput("invalid thread id")
	}

	content, err := os.ReadFile(s.path(threadID))
	if os.IsNotExist(err) {
		return nil, apperrors.NotFound(fmt.Sprintf("thread %s not found", threadID))
	}
	if err != nil {
		return nil, err
	}

	var t Thread
	if err := json.Unmarshal(content, &t); err != nil {
		return nil, fmt.Errorf("parse thread %s: %w", threadID, err)
	}
	return &t, nil
}

func (s *TranscriptStore) Save(t *Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.UpdatedAt = time.Now().UTC()
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path(t.ID), bytes.NewReader(b))
}

func (s *TranscriptStore) path(threadID string) string {
	return filepath.Join(s.dir, threadID+".json")
}
