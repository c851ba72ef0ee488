package story

import "time"

// Story owns an ordered set of chapters and exactly one graph database.
// GraphDatabaseName is assigned once at creation (sanitized, unique) and is
// the only valid graph target for the story's chapters, even after renames.
type Story struct {
	ID                int64  `json:"id"`
	Title             string `json:"title"`
	GraphDatabaseName string `json:"graph_database_name"`
	Length            string `json:"length,omitempty"`
	Genre             string `json:"genre,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// Chapter is one unit of story text. SortOrder is a fractional key: within a
// story it is unique, and chapters sorted by it ascending define the canonical
// reading order regardless of id or insertion time.
type Chapter struct {
	ID          int64     `json:"id"`
	StoryID     int64     `json:"story_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	SortOrder   float64   `json:"sort_order"`
	Summary     string    `json:"summary,omitempty"`
	GraphSynced bool      `json:"graph_synced"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChapterSummary is the listing view: everything but the body.
type ChapterSummary struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	Summary   string  `json:"summary,omitempty"`
	SortOrder float64 `json:"sort_order"`
}

// NodeMapping records that a graph entity (label, name) was observed in a
// chapter. Rows are additive only: inserted once, cascade-deleted with their
// chapter, never updated.
type NodeMapping struct {
	NodeLabel string `json:"node_label"`
	NodeName  string `json:"node_name"`
	ChapterID int64  `json:"chapter_id"`
}

// Image is a generated illustration committed to a story, optionally attached
// to a chapter chosen at approval time.
type Image struct {
	ID        int64     `json:"id"`
	StoryID   int64     `json:"story_id"`
	ChapterID *int64    `json:"chapter_id,omitempty"`
	ImagePath string    `json:"image_path"`
	CreatedAt time.Time `json:"created_at"`
}
