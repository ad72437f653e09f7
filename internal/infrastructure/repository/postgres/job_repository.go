package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

// JobRepository keeps durable submission state for background jobs so the
// engine can resume pending work after a restart.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// PersistJob upserts the job's current retry state. Called on first
// submission and again before each scheduled retry.
func (r *JobRepository) PersistJob(ctx context.Context, job domain.Job) error {
	payload := job.Payload
	if payload == nil {
		payload = []byte("{}")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO jobs (id, kind, content_id, payload, attempts, max_attempts, status, eligible_at, submitted_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE
SET attempts = EXCLUDED.attempts, eligible_at = EXCLUDED.eligible_at, updated_at = EXCLUDED.updated_at
`, job.ID, string(job.Kind), job.ContentID, []byte(payload), job.Attempts, job.MaxAttempts,
		string(domain.JobStatusPending), job.EligibleAt, job.SubmittedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("persist job: %w", err)
	}
	return nil
}

// LoadPendingJobs returns every job not yet in a terminal status, ordered
// by eligibility so resume replays them in schedule order.
func (r *JobRepository) LoadPendingJobs(ctx context.Context) ([]domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, kind, content_id, payload, attempts, max_attempts, eligible_at, submitted_at
FROM jobs
WHERE status = $1
ORDER BY eligible_at ASC, submitted_at ASC
`, string(domain.JobStatusPending))
	if err != nil {
		return nil, fmt.Errorf("load pending jobs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Job, 0)
	for rows.Next() {
		var job domain.Job
		var kind string
		var payload []byte
		if err := rows.Scan(&job.ID, &kind, &job.ContentID, &payload, &job.Attempts, &job.MaxAttempts, &job.EligibleAt, &job.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job.Kind = domain.JobKind(kind)
		job.Payload = payload
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

func (r *JobRepository) MarkTerminal(ctx context.Context, jobID string, status domain.JobStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, jobID, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark job terminal: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark job terminal rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job not found: id=%s", jobID)
	}
	return nil
}
