package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

// NoteRepository persists committed notes. One note per content id: a
// repeated save for the same content is absorbed, not duplicated.
type NoteRepository struct {
	db *sql.DB
}

func NewNoteRepository(db *sql.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

func (r *NoteRepository) SaveNote(ctx context.Context, contentID, topicID string, note domain.RenderedNote) error {
	tags := note.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO notes (id, content_id, topic_id, title, body, tags, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (content_id) DO NOTHING
`, uuid.NewString(), contentID, topicID, note.Title, note.Body, tagsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (r *NoteRepository) IsProcessed(ctx context.Context, contentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM notes WHERE content_id = $1)
`, contentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check note exists: %w", err)
	}
	return exists, nil
}

// ListByTopic returns the stored notes for one topic, newest first.
func (r *NoteRepository) ListByTopic(ctx context.Context, topicID string, limit int) ([]domain.StoredNote, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, content_id, topic_id, title, body, tags, created_at
FROM notes
WHERE topic_id = $1
ORDER BY created_at DESC
LIMIT $2
`, topicID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StoredNote, 0)
	for rows.Next() {
		var note domain.StoredNote
		var tagsRaw []byte
		if err := rows.Scan(&note.ID, &note.ContentID, &note.TopicID, &note.Title, &note.Body, &tagsRaw, &note.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		if err := json.Unmarshal(tagsRaw, &note.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
		out = append(out, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return out, nil
}
