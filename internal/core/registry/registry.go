package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
	"github.com/kirillkom/sekretar-core/internal/core/ports"
)

type snapshot struct {
	topics   []domain.TopicCandidate
	loadedAt time.Time
}

// TopicRegistry is a read-through cache over the authoritative topic list.
// The snapshot is replaced as a whole; readers never observe a mix of old
// and new entries, and never block on a refresh after the first cold load.
type TopicRegistry struct {
	source ports.TopicSource

	current atomic.Pointer[snapshot]
	// Serializes cold loads and refreshes against each other.
	refreshMu sync.Mutex
}

func New(source ports.TopicSource) *TopicRegistry {
	return &TopicRegistry{source: source}
}

// Get returns the last good snapshot, loading synchronously only when no
// snapshot exists yet. Callers must treat the returned slice as read-only.
func (r *TopicRegistry) Get(ctx context.Context) ([]domain.TopicCandidate, error) {
	if snap := r.current.Load(); snap != nil {
		return snap.topics, nil
	}

	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()
	if snap := r.current.Load(); snap != nil {
		return snap.topics, nil
	}
	if err := r.load(ctx); err != nil {
		return nil, fmt.Errorf("cold load topics: %w", err)
	}
	return r.current.Load().topics, nil
}

// Refresh replaces the snapshot atomically. A failed refresh leaves the
// previous snapshot in place; only the refresher sees the error.
func (r *TopicRegistry) Refresh(ctx context.Context) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()
	if err := r.load(ctx); err != nil {
		return fmt.Errorf("refresh topics: %w", err)
	}
	return nil
}

// Active returns only active topics from the current snapshot.
func (r *TopicRegistry) Active(ctx context.Context) ([]domain.TopicCandidate, error) {
	topics, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TopicCandidate, 0, len(topics))
	for _, t := range topics {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

// Lookup finds one topic by id in the current snapshot.
func (r *TopicRegistry) Lookup(ctx context.Context, topicID string) (domain.TopicCandidate, error) {
	topics, err := r.Get(ctx)
	if err != nil {
		return domain.TopicCandidate{}, err
	}
	for _, t := range topics {
		if t.ID == topicID {
			return t, nil
		}
	}
	return domain.TopicCandidate{}, domain.WrapError(domain.ErrNotFound, "lookup topic", fmt.Errorf("topic %s not in registry", topicID))
}

func (r *TopicRegistry) load(ctx context.Context) error {
	topics, err := r.source.ListTopics(ctx)
	if err != nil {
		return err
	}
	owned := make([]domain.TopicCandidate, len(topics))
	copy(owned, topics)
	r.current.Store(&snapshot{topics: owned, loadedAt: time.Now().UTC()})
	return nil
}
