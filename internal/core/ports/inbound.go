package ports

import (
	"context"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

// ContentIngestor is the inbound contract the transport delivers content into.
type ContentIngestor interface {
	Ingest(ctx context.Context, item domain.ContentItem) error
}

// DecisionHandler receives human confirmation decisions from the transport.
type DecisionHandler interface {
	Decide(ctx context.Context, confirmationID, chosenTopicID string) error
	Dismiss(ctx context.Context, confirmationID string) error
}

// PipelineCanceler retracts an in-flight content item. Cancellation after
// commit is a no-op.
type PipelineCanceler interface {
	Cancel(ctx context.Context, contentID string) error
}
