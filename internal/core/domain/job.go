package domain

import (
	"encoding/json"
	"time"
)

type JobKind string

const (
	JobKindTranscribe      JobKind = "transcribe"
	JobKindFetchLinkMeta   JobKind = "fetch_link_metadata"
	JobKindExtractFileText JobKind = "extract_file_text"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusDead      JobStatus = "dead"
)

// Job is one unit of work owned by the task engine from submission
// until it succeeds or is dead-lettered.
type Job struct {
	ID          string          `json:"id"`
	Kind        JobKind         `json:"kind"`
	ContentID   string          `json:"content_id"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	EligibleAt  time.Time       `json:"eligible_at"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// JobResult is delivered asynchronously once per job, on success or
// after the retry budget is exhausted.
type JobResult struct {
	JobID     string
	Kind      JobKind
	ContentID string
	Value     string
	Err       error
}
