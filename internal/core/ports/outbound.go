package ports

import (
	"context"
	"io"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

// NoteStore persists finished notes. SaveNote must be idempotent per
// content id: saving twice for the same id keeps exactly one note.
type NoteStore interface {
	SaveNote(ctx context.Context, contentID, topicID string, note domain.RenderedNote) error
	IsProcessed(ctx context.Context, contentID string) (bool, error)
}

// JobStateStore keeps durable submission state so in-flight jobs survive
// an engine restart. The engine itself stays stateless across restarts.
type JobStateStore interface {
	PersistJob(ctx context.Context, job domain.Job) error
	LoadPendingJobs(ctx context.Context) ([]domain.Job, error)
	MarkTerminal(ctx context.Context, jobID string, status domain.JobStatus, errMessage string) error
}

// TopicSource is the authoritative topic list the registry cache wraps.
type TopicSource interface {
	ListTopics(ctx context.Context) ([]domain.TopicCandidate, error)
}

// Notifier surfaces pipeline outcomes to the end user via the chat transport.
type Notifier interface {
	NeedsConfirmation(ctx context.Context, pc domain.PendingConfirmation) error
	Committed(ctx context.Context, contentID, topicID string) error
	Discarded(ctx context.Context, contentID string) error
}

// AIBackend is one configured AI provider. The gateway owns ordering and
// fallback between backends; a backend only answers or fails.
type AIBackend interface {
	Name() string
	Classify(ctx context.Context, text string, candidates []domain.TopicCandidate) (domain.ClassificationResult, error)
	Render(ctx context.Context, text string, topic domain.TopicCandidate) (domain.RenderedNote, error)
	Transcribe(ctx context.Context, audio io.Reader, mimeType string) (string, error)
}

// MediaStore stores and opens media payloads referenced by content items.
type MediaStore interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// LinkFetcher resolves a URL to its page metadata. Used only inside
// job handlers.
type LinkFetcher interface {
	FetchMetadata(ctx context.Context, url string) (title, description string, err error)
}

// FileTextExtractor derives text from a stored file payload. Used only
// inside job handlers.
type FileTextExtractor interface {
	Extract(ctx context.Context, ref domain.MediaRef) (string, error)
}
