package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

// TopicRepository is the authoritative topic list behind the in-memory
// registry snapshot.
type TopicRepository struct {
	db *sql.DB
}

func NewTopicRepository(db *sql.DB) *TopicRepository {
	return &TopicRepository{db: db}
}

func (r *TopicRepository) ListTopics(ctx context.Context) ([]domain.TopicCandidate, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, description, format_policy, active
FROM topics
ORDER BY title ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TopicCandidate, 0)
	for rows.Next() {
		var topic domain.TopicCandidate
		if err := rows.Scan(&topic.ID, &topic.Title, &topic.Description, &topic.FormatPolicy, &topic.Active); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return out, nil
}

// Count reports how many topics exist, used to decide first-run seeding.
func (r *TopicRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM topics`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count topics: %w", err)
	}
	return n, nil
}

// SeedTopics inserts the given topics, skipping ids that already exist.
func (r *TopicRepository) SeedTopics(ctx context.Context, topics []domain.TopicCandidate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	for _, topic := range topics {
		_, err := tx.ExecContext(ctx, `
INSERT INTO topics (id, title, description, format_policy, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO NOTHING
`, topic.ID, topic.Title, topic.Description, topic.FormatPolicy, topic.Active, now)
		if err != nil {
			return fmt.Errorf("seed topic %s: %w", topic.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed tx: %w", err)
	}
	return nil
}
