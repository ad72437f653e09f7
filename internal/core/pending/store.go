package pending

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

// Store holds in-flight, not-yet-committed classification decisions.
// Exactly one live entry may exist per content item id; a second Create
// for the same id is a conflict, never a silent overwrite. Expiry is a
// one-way transition owned by the sweep.
type Store struct {
	now func() time.Time

	mu        sync.Mutex
	byID      map[string]domain.PendingConfirmation
	byContent map[string]string
	// Swept ids stay here so a late Resolve reports Expired, not NotFound.
	expired  map[string]struct{}
	onExpire func(domain.PendingConfirmation)
}

type Options struct {
	// Clock overrides wall-clock time in tests.
	Clock func() time.Time
}

func New(options Options) *Store {
	now := options.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		now:       now,
		byID:      make(map[string]domain.PendingConfirmation),
		byContent: make(map[string]string),
		expired:   make(map[string]struct{}),
	}
}

// OnExpire registers the callback the sweep fires for each expired entry.
// Must be set before Run.
func (s *Store) OnExpire(fn func(domain.PendingConfirmation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = fn
}

func (s *Store) Create(item domain.ContentItem, signalText string, candidates []domain.RankedTopic, ttl time.Duration) (domain.PendingConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byContent[item.ID]; ok {
		return domain.PendingConfirmation{}, domain.WrapError(
			domain.ErrConflict,
			"create pending confirmation",
			fmt.Errorf("content %s already has confirmation %s", item.ID, existingID),
		)
	}

	now := s.now()
	pc := domain.PendingConfirmation{
		ID:         uuid.NewString(),
		Item:       item,
		SignalText: signalText,
		Candidates: sortedByConfidence(candidates),
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	s.byID[pc.ID] = pc
	s.byContent[item.ID] = pc.ID
	return pc, nil
}

// Resolve removes and returns a live entry. A swept id reports Expired
// forever; an unknown or already-resolved id reports NotFound.
func (s *Store) Resolve(confirmationID string) (domain.PendingConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeLocked(confirmationID, "resolve pending confirmation")
}

// Discard removes a live entry without committing it.
func (s *Store) Discard(confirmationID string) (domain.PendingConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeLocked(confirmationID, "discard pending confirmation")
}

func (s *Store) takeLocked(confirmationID, op string) (domain.PendingConfirmation, error) {
	if _, swept := s.expired[confirmationID]; swept {
		return domain.PendingConfirmation{}, domain.WrapError(domain.ErrExpired, op, fmt.Errorf("confirmation %s was swept", confirmationID))
	}
	pc, ok := s.byID[confirmationID]
	if !ok {
		return domain.PendingConfirmation{}, domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("confirmation %s", confirmationID))
	}
	delete(s.byID, confirmationID)
	delete(s.byContent, pc.Item.ID)
	return pc, nil
}

// SweepOnce expires every overdue entry and fires the expiry callback for
// each, outside the lock. Returns the expired entries.
func (s *Store) SweepOnce() []domain.PendingConfirmation {
	s.mu.Lock()
	now := s.now()
	var swept []domain.PendingConfirmation
	for id, pc := range s.byID {
		if pc.ExpiresAt.After(now) {
			continue
		}
		delete(s.byID, id)
		delete(s.byContent, pc.Item.ID)
		s.expired[id] = struct{}{}
		swept = append(swept, pc)
	}
	onExpire := s.onExpire
	s.mu.Unlock()

	sort.Slice(swept, func(i, j int) bool { return swept[i].ExpiresAt.Before(swept[j].ExpiresAt) })
	if onExpire != nil {
		for _, pc := range swept {
			onExpire(pc)
		}
	}
	return swept
}

// Run sweeps on a fixed interval until the context is done. Expiry does
// not depend on anyone querying the entry again.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// Len reports the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func sortedByConfidence(candidates []domain.RankedTopic) []domain.RankedTopic {
	out := make([]domain.RankedTopic, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}
