package natsbus

import (
	"context"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

type notifyMessage struct {
	Type         string                      `json:"type"`
	ContentID    string                      `json:"content_id,omitempty"`
	TopicID      string                      `json:"topic_id,omitempty"`
	Confirmation *domain.PendingConfirmation `json:"confirmation,omitempty"`
}

// NeedsConfirmation publishes the parked item with its ranked candidates
// so the chat frontend can ask the user.
func (b *Bus) NeedsConfirmation(ctx context.Context, pc domain.PendingConfirmation) error {
	return b.publish(ctx, b.subjects.Notify, notifyMessage{
		Type:         "needs_confirmation",
		ContentID:    pc.Item.ID,
		Confirmation: &pc,
	})
}

func (b *Bus) Committed(ctx context.Context, contentID, topicID string) error {
	return b.publish(ctx, b.subjects.Notify, notifyMessage{
		Type:      "committed",
		ContentID: contentID,
		TopicID:   topicID,
	})
}

func (b *Bus) Discarded(ctx context.Context, contentID string) error {
	return b.publish(ctx, b.subjects.Notify, notifyMessage{
		Type:      "discarded",
		ContentID: contentID,
	})
}
