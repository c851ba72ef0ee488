package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/talemachine/talemachine/internal/errors"
	"github.com/talemachine/talemachine/internal/story"
)

// MemoryStore keeps everything in maps under one mutex. It backs the test
// suite and `serve --memory`; the invariants match the Postgres schema.
type MemoryStore struct {
	mu        sync.RWMutex
	stories   map[int64]story.Story
	chapters  map[int64]story.Chapter
	mappings  []story.NodeMapping
	images    map[int64]story.Image
	nextStory int64
	nextChap  int64
	nextImage int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stories:  make(map[int64]story.Story),
		chapters: make(map[int64]story.Chapter),
		images:   make(map[int64]story.Image),
	}
}

func (s *MemoryStore) InsertStory(_ context.Context, st story.Story) (story.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.stories {
		if existing.GraphDatabaseName == st.GraphDatabaseName {
			return story.Story{}, errors.Conflict(fmt.Sprintf("graph database %q", st.GraphDatabaseName))
		}
	}

	s.nextStory++
	st.ID = s.nextStory
	s.stories[st.ID] = st
	return st, nil
}

func (s *MemoryStore) GetStoryByID(_ context.Context, id int64) (story.Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stories[id]
	if !ok {
		return story.Story{}, errors.NotFound(fmt.Sprintf("story %d", id))
	}
	return st, nil
}

func (s *MemoryStore) GetAllStories(_ context.Context) ([]story.Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]story.Story, 0, len(s.stories))
	for _, st := range s.stories {
		items = append(items, st)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *MemoryStore) DeleteStory(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stories[id]; !ok {
		return false, nil
	}
	delete(s.stories, id)

	for cid, ch := range s.chapters {
		if ch.StoryID == id {
			delete(s.chapters, cid)
			s.dropMappingsLocked(cid)
		}
	}
	for iid, img := range s.images {
		if img.StoryID == id {
			delete(s.images, iid)
		}
	}
	return true, nil
}

func (s *MemoryStore) UpdateStoryTitle(_ context.Context, id int64, title string) (story.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stories[id]
	if !ok {
		return story.Story{}, errors.NotFound(fmt.Sprintf("story %d", id))
	}
	st.Title = title
	s.stories[id] = st
	return st, nil
}

func (s *MemoryStore) InsertChapter(_ context.Context, ch story.Chapter) (story.Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stories[ch.StoryID]; !ok {
		return story.Chapter{}, errors.NotFound(fmt.Sprintf("story %d", ch.StoryID))
	}
	for _, existing := range s.chapters {
		if existing.StoryID == ch.StoryID && existing.SortOrder == ch.SortOrder {
			return story.Chapter{}, errors.Conflict(fmt.Sprintf("sort_order %v in story %d", ch.SortOrder, ch.StoryID))
		}
	}

	s.nextChap++
	ch.ID = s.nextChap
	if ch.Timestamp.IsZero() {
		ch.Timestamp = time.Now().UTC()
	}
	s.chapters[ch.ID] = ch
	return ch, nil
}

func (s *MemoryStore) GetChapterByID(_ context.Context, id int64) (story.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.chapters[id]
	if !ok {
		return story.Chapter{}, errors.NotFound(fmt.Sprintf("chapter %d", id))
	}
	return ch, nil
}

func (s *MemoryStore) GetChaptersOrdered(_ context.Context, storyID int64) ([]story.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]story.Chapter, 0)
	for _, ch := range s.chapters {
		if ch.StoryID == storyID {
			items = append(items, ch)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SortOrder < items[j].SortOrder })
	return items, nil
}

func (s *MemoryStore) GetChapterByTitle(_ context.Context, storyID int64, title string) (story.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.chapters {
		if ch.StoryID == storyID && ch.Title == title {
			return ch, nil
		}
	}
	return story.Chapter{}, errors.NotFound(fmt.Sprintf("chapter %q in story %d", title, storyID))
}

func (s *MemoryStore) GetChapterSummaries(ctx context.Context, storyID int64) ([]story.ChapterSummary, error) {
	chapters, err := s.GetChaptersOrdered(ctx, storyID)
	if err != nil {
		return nil, err
	}

	items := make([]story.ChapterSummary, 0, len(chapters))
	for _, ch := range chapters {
		items = append(items, story.ChapterSummary{
			ID:        ch.ID,
			Title:     ch.Title,
			Summary:   ch.Summary,
			SortOrder: ch.SortOrder,
		})
	}
	return items, nil
}

func (s *MemoryStore) DeleteChapter(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chapters[id]; !ok {
		return false, nil
	}
	delete(s.chapters, id)
	s.dropMappingsLocked(id)

	for iid, img := range s.images {
		if img.ChapterID != nil && *img.ChapterID == id {
			img.ChapterID = nil
			s.images[iid] = img
		}
	}
	return true, nil
}

func (s *MemoryStore) SetGraphSynced(_ context.Context, id int64, synced bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.chapters[id]
	if !ok {
		return errors.NotFound(fmt.Sprintf("chapter %d", id))
	}
	ch.GraphSynced = synced
	s.chapters[id] = ch
	return nil
}

func (s *MemoryStore) ListUnsyncedChapters(_ context.Context, limit int) ([]story.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]story.Chapter, 0)
	for _, ch := range s.chapters {
		if !ch.GraphSynced {
			items = append(items, ch)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Timestamp.Before(items[j].Timestamp) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) InsertMapping(_ context.Context, m story.NodeMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.mappings {
		if existing == m {
			return nil
		}
	}
	s.mappings = append(s.mappings, m)
	return nil
}

func (s *MemoryStore) GetMappingsByChapter(_ context.Context, chapterID int64) ([]story.NodeMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]story.NodeMapping, 0)
	for _, m := range s.mappings {
		if m.ChapterID == chapterID {
			items = append(items, m)
		}
	}
	return items, nil
}

func (s *MemoryStore) GetMappingsByEntity(_ context.Context, label, name string) ([]story.NodeMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]story.NodeMapping, 0)
	for _, m := range s.mappings {
		if m.NodeLabel == label && m.NodeName == name {
			items = append(items, m)
		}
	}
	return items, nil
}

func (s *MemoryStore) dropMappingsLocked(chapterID int64) {
	kept := s.mappings[:0]
	for _, m := range s.mappings {
		if m.ChapterID != chapterID {
			kept = append(kept, m)
		}
	}
	s.mappings = kept
}

func (s *MemoryStore) InsertImage(_ context.Context, img story.Image) (story.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stories[img.StoryID]; !ok {
		return story.Image{}, errors.NotFound(fmt.Sprintf("story %d", img.StoryID))
	}

	s.nextImage++
	img.ID = s.nextImage
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	s.images[img.ID] = img
	return img, nil
}

func (s *MemoryStore) GetImagesByStory(_ context.Context, storyID int64) ([]story.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]story.Image, 0)
	for _, img := range s.images {
		if img.StoryID == storyID {
			items = append(items, img)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}
