package domain

import "time"

type ContentKind string

const (
	KindText  ContentKind = "text"
	KindVoice ContentKind = "voice"
	KindLink  ContentKind = "link"
	KindFile  ContentKind = "file"
)

type ContentState string

const (
	StateReceived             ContentState = "received"
	StateEnriching            ContentState = "enriching"
	StateClassifying          ContentState = "classifying"
	StateAwaitingConfirmation ContentState = "awaiting_confirmation"
	StateCommitted            ContentState = "committed"
	StateDiscarded            ContentState = "discarded"
)

// Terminal reports whether no further transitions are allowed from s.
func (s ContentState) Terminal() bool {
	return s == StateCommitted || s == StateDiscarded
}

// Origin identifies where a content item came from.
type Origin struct {
	UserID   int64 `json:"user_id"`
	GroupID  int64 `json:"group_id"`
	ThreadID int64 `json:"thread_id,omitempty"`
}

// MediaRef points at a stored media payload (voice/file content).
type MediaRef struct {
	StorageKey string `json:"storage_key"`
	Filename   string `json:"filename,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
}

// ContentItem is one inbound unit of material awaiting classification.
// Immutable once created; the pipeline run owns it until a terminal state.
type ContentItem struct {
	ID         string      `json:"id"`
	Origin     Origin      `json:"origin"`
	Kind       ContentKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	Media      *MediaRef   `json:"media,omitempty"`
	ReceivedAt time.Time   `json:"received_at"`
}

// EnrichedContent is a ContentItem plus best-effort derived text.
// Absence of enrichment narrows the classification signal, never blocks it.
type EnrichedContent struct {
	Item        ContentItem
	DerivedText string
}

// SignalText is the text handed to the classifier: the raw text plus
// whatever enrichment produced, in that order.
func (e EnrichedContent) SignalText() string {
	switch {
	case e.Item.Text != "" && e.DerivedText != "":
		return e.Item.Text + "\n" + e.DerivedText
	case e.DerivedText != "":
		return e.DerivedText
	default:
		return e.Item.Text
	}
}

// TopicCandidate is one valid destination category.
type TopicCandidate struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	FormatPolicy string `json:"format_policy,omitempty"`
	Active       bool   `json:"active"`
}

// RankedTopic is a candidate with the confidence the classifier assigned it.
type RankedTopic struct {
	TopicID    string  `json:"topic_id"`
	Confidence float64 `json:"confidence"`
}

// ClassificationResult is the gateway's answer for one content item.
// TopicID is empty when no confident match exists. Never mutated.
type ClassificationResult struct {
	TopicID    string        `json:"topic_id"`
	Confidence float64       `json:"confidence"`
	Rationale  string        `json:"rationale,omitempty"`
	Candidates []RankedTopic `json:"candidates,omitempty"`
}

// RenderedNote is formatted text ready for storage.
type RenderedNote struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

// StoredNote is a committed note as persisted, with its storage identity.
type StoredNote struct {
	ID        string    `json:"id"`
	ContentID string    `json:"content_id"`
	TopicID   string    `json:"topic_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingConfirmation is a parked classification decision awaiting a human.
type PendingConfirmation struct {
	ID         string        `json:"id"`
	Item       ContentItem   `json:"item"`
	SignalText string        `json:"signal_text"`
	Candidates []RankedTopic `json:"candidates"`
	CreatedAt  time.Time     `json:"created_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
}
