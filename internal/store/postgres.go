package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/talemachine/talemachine/internal/errors"
	"github.com/talemachine/talemachine/internal/story"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) InsertStory(ctx context.Context, st story.Story) (story.Story, error) {
	const insert = `
		INSERT INTO stories (title, graph_database_name, length, genre, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, insert, st.Title, st.GraphDatabaseName, st.Length, st.Genre, st.Notes).Scan(&st.ID)
	if err != nil {
		return story.Story{}, errors.Wrap(errors.MapExternal(err), "insert story")
	}
	return st, nil
}

func (s *PostgresStore) GetStoryByID(ctx context.Context, id int64) (story.Story, error) {
	const query = `SELECT id, title, graph_database_name, length, genre, notes FROM stories WHERE id=$1`
	var st story.Story
	err := s.db.QueryRowContext(ctx, query, id).Scan(&st.ID, &st.Title, &st.GraphDatabaseName, &st.Length, &st.Genre, &st.Notes)
	if stderrors.Is(err, sql.ErrNoRows) {
		return story.Story{}, errors.NotFound(fmt.Sprintf("story %d", id))
	}
	if err != nil {
		return story.Story{}, fmt.Errorf("get story: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) GetAllStories(ctx context.Context) ([]story.Story, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, graph_database_name, length, genre, notes FROM stories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	items := make([]story.Story, 0)
	for rows.Next() {
		var st story.Story
		if err := rows.Scan(&st.ID, &st.Title, &st.GraphDatabaseName, &st.Length, &st.Genre, &st.Notes); err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		items = append(items, st)
	}
	return items, rows.Err()
}

func (s *PostgresStore) DeleteStory(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stories WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete story: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete story: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) UpdateStoryTitle(ctx context.Context, id int64, title string) (story.Story, error) {
	const update = `
		UPDATE stories SET title=$2 WHERE id=$1
		RETURNING id, title, graph_database_name, length, genre, notes
	`
	var st story.Story
	err := s.db.QueryRowContext(ctx, update, id, title).Scan(&st.ID, &st.Title, &st.GraphDatabaseName, &st.Length, &st.Genre, &st.Notes)
	if stderrors.Is(err, sql.ErrNoRows) {
		return story.Story{}, errors.NotFound(fmt.Sprintf("story %d", id))
	}
	if err != nil {
		return story.Story{}, fmt.Errorf("update story title: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) InsertChapter(ctx context.Context, ch story.Chapter) (story.Chapter, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return story.Chapter{}, fmt.Errorf("begin insert chapter: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM stories WHERE id=$1)`, ch.StoryID).Scan(&exists); err != nil {
		return story.Chapter{}, fmt.Errorf("check story: %w", err)
	}
	if !exists {
		return story.Chapter{}, errors.NotFound(fmt.Sprintf("story %d", ch.StoryID))
	}

	const insert = `
		INSERT INTO chapters (story_id, title, content, sort_order, summary, graph_synced)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err = tx.QueryRowContext(ctx, insert, ch.StoryID, ch.Title, ch.Content, ch.SortOrder, ch.Summary, ch.GraphSynced).
		Scan(&ch.ID, &ch.Timestamp)
	if err != nil {
		return story.Chapter{}, errors.Wrap(errors.MapExternal(err), "insert chapter")
	}

	if err := tx.Commit(); err != nil {
		return story.Chapter{}, fmt.Errorf("commit insert chapter: %w", err)
	}
	return ch, nil
}

const chapterColumns = `id, story_id, title, content, sort_order, summary, graph_synced, created_at`

func scanChapter(row interface{ Scan(...any) error }) (story.Chapter, error) {
	var ch story.Chapter
	err := row.Scan(&ch.ID, &ch.StoryID, &ch.Title, &ch.Content, &ch.SortOrder, &ch.Summary, &ch.GraphSynced, &ch.Timestamp)
	return ch, err
}

func (s *PostgresStore) GetChapterByID(ctx context.Context, id int64) (story.Chapter, error) {
	ch, err := scanChapter(s.db.QueryRowContext(ctx, `SELECT `+chapterColumns+` FROM chapters WHERE id=$1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return story.Chapter{}, errors.NotFound(fmt.Sprintf("chapter %d", id))
	}
	if err != nil {
		return story.Chapter{}, fmt.Errorf("get chapter: %w", err)
	}
	return ch, nil
}

func (s *PostgresStore) GetChaptersOrdered(ctx context.Context, storyID int64) ([]story.Chapter, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chapterColumns+` FROM chapters WHERE story_id=$1 ORDER BY sort_order ASC`, storyID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	items := make([]story.Chapter, 0)
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		items = append(items, ch)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetChapterByTitle(ctx context.Context, storyID int64, title string) (story.Chapter, error) {
	ch, err := scanChapter(s.db.QueryRowContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE story_id=$1 AND title=$2`, storyID, title))
	if stderrors.Is(err, sql.ErrNoRows) {
		return story.Chapter{}, errors.NotFound(fmt.Sprintf("chapter %q in story %d", title, storyID))
	}
	if err != nil {
		return story.Chapter{}, fmt.Errorf("get chapter by title: %w", err)
	}
	return ch, nil
}

func (s *PostgresStore) GetChapterSummaries(ctx context.Context, storyID int64) ([]story.ChapterSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, summary, sort_order FROM chapters WHERE story_id=$1 ORDER BY sort_order ASC`, storyID)
	if err != nil {
		return nil, fmt.Errorf("list chapter summaries: %w", err)
	}
	defer rows.Close()

	items := make([]story.ChapterSummary, 0)
	for rows.Next() {
		var cs story.ChapterSummary
		if err := rows.Scan(&cs.ID, &cs.Title, &cs.Summary, &cs.SortOrder); err != nil {
			return nil, fmt.Errorf("scan chapter summary: %w", err)
		}
		items = append(items, cs)
	}
	return items, rows.Err()
}

func (s *PostgresStore) DeleteChapter(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chapters WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete chapter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete chapter: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) SetGraphSynced(ctx context.Context, id int64, synced bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chapters SET graph_synced=$2 WHERE id=$1`, id, synced)
	if err != nil {
		return fmt.Errorf("set graph synced: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUnsyncedChapters(ctx context.Context, limit int) ([]story.Chapter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE graph_synced=FALSE ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unsynced chapters: %w", err)
	}
	defer rows.Close()

	items := make([]story.Chapter, 0)
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		items = append(items, ch)
	}
	return items, rows.Err()
}

func (s *PostgresStore) InsertMapping(ctx context.Context, m story.NodeMapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chapter_node_mappings (chapter_id, node_label, node_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (chapter_id, node_label, node_name) DO NOTHING
	`, m.ChapterID, m.NodeLabel, m.NodeName)
	if err != nil {
		return errors.Wrap(errors.MapExternal(err), "insert mapping")
	}
	return nil
}

func (s *PostgresStore) GetMappingsByChapter(ctx context.Context, chapterID int64) ([]story.NodeMapping, error) {
	return s.queryMappings(ctx,
		`SELECT chapter_id, node_label, node_name FROM chapter_node_mappings WHERE chapter_id=$1`, chapterID)
}

func (s *PostgresStore) GetMappingsByEntity(ctx context.Context, label, name string) ([]story.NodeMapping, error) {
	return s.queryMappings(ctx,
		`SELECT chapter_id, node_label, node_name FROM chapter_node_mappings WHERE node_label=$1 AND node_name=$2`, label, name)
}

func (s *PostgresStore) queryMappings(ctx context.Context, query string, args ...any) ([]story.NodeMapping, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mappings: %w", err)
	}
	defer rows.Close()

	items := make([]story.NodeMapping, 0)
	for rows.Next() {
		var m story.NodeMapping
		if err := rows.Scan(&m.ChapterID, &m.NodeLabel, &m.NodeName); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (s *PostgresStore) InsertImage(ctx context.Context, img story.Image) (story.Image, error) {
	const insert = `
		INSERT INTO images (story_id, chapter_id, image_path)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, insert, img.StoryID, img.ChapterID, img.ImagePath).Scan(&img.ID, &img.CreatedAt)
	if err != nil {
		return story.Image{}, errors.Wrap(errors.MapExternal(err), "insert image")
	}
	return img, nil
}

func (s *PostgresStore) GetImagesByStory(ctx context.Context, storyID int64) ([]story.Image, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, story_id, chapter_id, image_path, created_at FROM images WHERE story_id=$1 ORDER BY id`, storyID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	items := make([]story.Image, 0)
	for rows.Next() {
		var img story.Image
		if err := rows.Scan(&img.ID, &img.StoryID, &img.ChapterID, &img.ImagePath, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		items = append(items, img)
	}
	return items, rows.Err()
}
