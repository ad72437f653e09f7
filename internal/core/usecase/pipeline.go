package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
	"github.com/kirillkom/sekretar-core/internal/core/pending"
	"github.com/kirillkom/sekretar-core/internal/core/ports"
)

// AIGateway is the slice of the provider gateway the pipeline itself uses.
// Transcription happens inside enrichment job handlers, not here.
type AIGateway interface {
	Classify(ctx context.Context, text string, candidates []domain.TopicCandidate) (domain.ClassificationResult, error)
	Render(ctx context.Context, text string, topic domain.TopicCandidate) (domain.RenderedNote, error)
}

// JobSubmitter is the slice of the task engine the pipeline uses.
type JobSubmitter interface {
	Submit(ctx context.Context, kind domain.JobKind, contentID string, payload json.RawMessage) (string, error)
}

// TopicProvider is the slice of the topic registry the pipeline uses.
type TopicProvider interface {
	Active(ctx context.Context) ([]domain.TopicCandidate, error)
	Lookup(ctx context.Context, topicID string) (domain.TopicCandidate, error)
}

// Observer receives pipeline metrics. Satisfied by metrics.PipelineMetrics.
type Observer interface {
	StartItem()
	FinishItem(service, outcome string, duration time.Duration)
	ConfirmationOpened()
	ConfirmationClosed(expired bool)
}

type noopObserver struct{}

func (noopObserver) StartItem()                               {}
func (noopObserver) FinishItem(string, string, time.Duration) {}
func (noopObserver) ConfirmationOpened()                      {}
func (noopObserver) ConfirmationClosed(bool)                  {}

type Config struct {
	Service             string
	AutoCommitThreshold float64
	TopKCandidates      int
	ConfirmationTTL     time.Duration
	EnrichmentTimeout   time.Duration
	// ExpireAutoCommitTopic, when set, commits expired confirmations to
	// that topic instead of discarding them. Off by default.
	ExpireAutoCommitTopic string
	// Clock overrides wall-clock time in tests.
	Clock func() time.Time
}

func (c Config) normalize() Config {
	out := c
	if out.Service == "" {
		out.Service = "pipeline"
	}
	if out.AutoCommitThreshold <= 0 || out.AutoCommitThreshold > 1 {
		out.AutoCommitThreshold = 0.8
	}
	if out.TopKCandidates <= 0 {
		out.TopKCandidates = 3
	}
	if out.ConfirmationTTL <= 0 {
		out.ConfirmationTTL = 300 * time.Second
	}
	if out.EnrichmentTimeout <= 0 {
		out.EnrichmentTimeout = 120 * time.Second
	}
	if out.Clock == nil {
		out.Clock = func() time.Time { return time.Now().UTC() }
	}
	return out
}

// Pipeline drives each content item through
// Received -> (Enriching)? -> Classifying -> Committed, or parks it as a
// pending confirmation until a human decision or the TTL sweep resolves it.
// Transitions for one content id never run concurrently; unrelated items
// proceed independently.
type Pipeline struct {
	cfg      Config
	gateway  AIGateway
	engine   JobSubmitter
	topics   TopicProvider
	pendings *pending.Store
	notes    ports.NoteStore
	notifier ports.Notifier
	logger   *slog.Logger
	obs      Observer

	locks sync.Map // content id -> *sync.Mutex

	mu      sync.Mutex
	states  map[string]domain.ContentState
	cancels map[string]context.CancelFunc
	waiters map[string]chan domain.JobResult
}

func NewPipeline(
	cfg Config,
	gateway AIGateway,
	engine JobSubmitter,
	topics TopicProvider,
	pendings *pending.Store,
	notes ports.NoteStore,
	notifier ports.Notifier,
	logger *slog.Logger,
	obs Observer,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if obs == nil {
		obs = noopObserver{}
	}
	p := &Pipeline{
		cfg:      cfg.normalize(),
		gateway:  gateway,
		engine:   engine,
		topics:   topics,
		pendings: pendings,
		notes:    notes,
		notifier: notifier,
		logger:   logger,
		obs:      obs,
		states:   make(map[string]domain.ContentState),
		cancels:  make(map[string]context.CancelFunc),
		waiters:  make(map[string]chan domain.JobResult),
	}
	pendings.OnExpire(p.handleExpiry)
	return p
}

// Ingest runs one content item to a committed or parked state. Re-delivery
// of an id that already reached a terminal or parked state short-circuits
// without a second classification.
func (p *Pipeline) Ingest(ctx context.Context, item domain.ContentItem) error {
	unlock := p.lockContent(item.ID)
	defer unlock()

	if err := p.checkFresh(ctx, item.ID); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.setCancel(item.ID, cancel)
	defer func() {
		p.clearCancel(item.ID)
		cancel()
	}()

	p.setState(item.ID, domain.StateReceived)
	p.obs.StartItem()
	start := p.cfg.Clock()

	enriched := p.enrich(runCtx, item)

	p.setState(item.ID, domain.StateClassifying)
	outcome, err := p.classifyAndRoute(runCtx, enriched)
	p.obs.FinishItem(p.cfg.Service, outcome, p.cfg.Clock().Sub(start))
	return err
}

// Decide commits a parked item to the topic a human chose.
func (p *Pipeline) Decide(ctx context.Context, confirmationID, chosenTopicID string) error {
	pc, err := p.pendings.Resolve(confirmationID)
	if err != nil {
		return err
	}

	unlock := p.lockContent(pc.Item.ID)
	defer unlock()

	topic, err := p.topics.Lookup(ctx, chosenTopicID)
	if err != nil {
		// The entry is already consumed; park the failure as a discard
		// rather than losing the decision silently.
		p.obs.ConfirmationClosed(false)
		p.setState(pc.Item.ID, domain.StateDiscarded)
		p.notifyDiscarded(ctx, pc.Item.ID)
		return err
	}

	if err := p.commit(ctx, pc.Item.ID, pc.SignalText, topic); err != nil {
		p.obs.ConfirmationClosed(false)
		return err
	}
	p.obs.ConfirmationClosed(false)
	return nil
}

// Dismiss discards a parked item on explicit human request.
func (p *Pipeline) Dismiss(ctx context.Context, confirmationID string) error {
	pc, err := p.pendings.Discard(confirmationID)
	if err != nil {
		return err
	}

	unlock := p.lockContent(pc.Item.ID)
	defer unlock()

	p.obs.ConfirmationClosed(false)
	p.setState(pc.Item.ID, domain.StateDiscarded)
	p.notifyDiscarded(ctx, pc.Item.ID)
	return nil
}

// Cancel retracts an in-flight item. After commit it is a no-op; undoing a
// committed note is a compensating action that belongs to a collaborator.
func (p *Pipeline) Cancel(_ context.Context, contentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state, ok := p.states[contentID]; ok && state.Terminal() {
		return nil
	}
	if cancel, ok := p.cancels[contentID]; ok {
		cancel()
	}
	return nil
}

// HandleJobResult routes an engine result to the pipeline run waiting on
// it. Results arriving after the enrichment timeout are dropped.
func (p *Pipeline) HandleJobResult(result domain.JobResult) {
	p.mu.Lock()
	waiter, ok := p.waiters[result.JobID]
	p.mu.Unlock()
	if !ok {
		p.logger.Debug("job_result_unclaimed", "job_id", result.JobID, "kind", result.Kind)
		return
	}
	select {
	case waiter <- result:
	default:
	}
}

// State reports the last known state for a content id.
func (p *Pipeline) State(contentID string) (domain.ContentState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.states[contentID]
	return state, ok
}

func (p *Pipeline) checkFresh(ctx context.Context, contentID string) error {
	p.mu.Lock()
	state, known := p.states[contentID]
	p.mu.Unlock()
	if known {
		return domain.WrapError(domain.ErrAlreadyProcessed, "ingest content", fmt.Errorf("content %s in state %s", contentID, state))
	}

	processed, err := p.notes.IsProcessed(ctx, contentID)
	if err != nil {
		return fmt.Errorf("check processed state: %w", err)
	}
	if processed {
		return domain.WrapError(domain.ErrAlreadyProcessed, "ingest content", fmt.Errorf("content %s already has a saved note", contentID))
	}
	return nil
}

// enrich submits the enrichment job for voice/link/file content and waits
// for its result, bounded by the enrichment timeout. Enrichment is
// advisory: any failure or timeout narrows the signal and never blocks
// classification.
func (p *Pipeline) enrich(ctx context.Context, item domain.ContentItem) domain.EnrichedContent {
	enriched := domain.EnrichedContent{Item: item}

	kind, payload, ok := enrichmentJob(item)
	if !ok {
		return enriched
	}

	p.setState(item.ID, domain.StateEnriching)

	jobID, err := p.engine.Submit(ctx, kind, item.ID, payload)
	if err != nil {
		p.logger.Warn("enrichment_submit_failed", "content_id", item.ID, "kind", kind, "error", err)
		return enriched
	}

	waiter := make(chan domain.JobResult, 1)
	p.mu.Lock()
	p.waiters[jobID] = waiter
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.waiters, jobID)
		p.mu.Unlock()
	}()

	timer := time.NewTimer(p.cfg.EnrichmentTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
		p.logger.Warn("enrichment_timeout", "content_id", item.ID, "kind", kind,
			"error", domain.ErrEnrichmentTimeout)
	case result := <-waiter:
		if result.Err != nil {
			p.logger.Warn("enrichment_failed", "content_id", item.ID, "kind", kind, "error", result.Err)
		} else {
			enriched.DerivedText = result.Value
		}
	}
	return enriched
}

func (p *Pipeline) classifyAndRoute(ctx context.Context, enriched domain.EnrichedContent) (string, error) {
	item := enriched.Item
	if err := ctx.Err(); err != nil {
		p.setState(item.ID, domain.StateDiscarded)
		p.notifyDiscarded(context.WithoutCancel(ctx), item.ID)
		return "canceled", domain.WrapError(domain.ErrCanceled, "classify content", err)
	}

	topics, err := p.topics.Active(ctx)
	if err != nil {
		return p.park(ctx, enriched, nil)
	}

	result, err := p.gateway.Classify(ctx, enriched.SignalText(), topics)
	if err != nil {
		if domain.IsKind(err, domain.ErrProviderUnavailable) {
			p.logger.Warn("classification_unavailable", "content_id", item.ID, "error", err)
			return p.park(ctx, enriched, nil)
		}
		if ctx.Err() != nil {
			p.setState(item.ID, domain.StateDiscarded)
			p.notifyDiscarded(context.WithoutCancel(ctx), item.ID)
			return "canceled", domain.WrapError(domain.ErrCanceled, "classify content", err)
		}
		p.logger.Error("classification_failed", "content_id", item.ID, "error", err)
		return p.park(ctx, enriched, nil)
	}

	if result.TopicID != "" && result.Confidence >= p.cfg.AutoCommitThreshold {
		topic, err := p.topics.Lookup(ctx, result.TopicID)
		if err == nil {
			if err := p.commit(ctx, item.ID, enriched.SignalText(), topic); err != nil {
				return "error", err
			}
			return "committed", nil
		}
		p.logger.Warn("classified_topic_unknown", "content_id", item.ID, "topic_id", result.TopicID)
	}

	return p.park(ctx, enriched, rankedCandidates(result, p.cfg.TopKCandidates))
}

// commit renders and saves the note. Callers hold the per-item lock.
func (p *Pipeline) commit(ctx context.Context, contentID, signalText string, topic domain.TopicCandidate) error {
	note, err := p.gateway.Render(ctx, signalText, topic)
	if err != nil {
		// Losing the note over a formatting failure would be worse than
		// saving it unpolished.
		p.logger.Warn("render_failed", "content_id", contentID, "topic_id", topic.ID, "error", err)
		note = domain.RenderedNote{Title: topic.Title, Body: signalText, Tags: []string{}}
	}

	if err := p.notes.SaveNote(ctx, contentID, topic.ID, note); err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	p.setState(contentID, domain.StateCommitted)

	if err := p.notifier.Committed(ctx, contentID, topic.ID); err != nil {
		p.logger.Warn("commit_notification_failed", "content_id", contentID, "error", err)
	}
	return nil
}

func (p *Pipeline) park(ctx context.Context, enriched domain.EnrichedContent, candidates []domain.RankedTopic) (string, error) {
	item := enriched.Item
	pc, err := p.pendings.Create(item, enriched.SignalText(), candidates, p.cfg.ConfirmationTTL)
	if err != nil {
		if domain.IsKind(err, domain.ErrConflict) {
			// A live confirmation already exists: upstream re-delivered.
			p.logger.Error("pending_confirmation_conflict", "content_id", item.ID, "error", err)
			return "conflict", err
		}
		return "error", err
	}

	p.setState(item.ID, domain.StateAwaitingConfirmation)
	p.obs.ConfirmationOpened()

	if err := p.notifier.NeedsConfirmation(ctx, pc); err != nil {
		p.logger.Warn("confirmation_notification_failed", "content_id", item.ID, "error", err)
	}
	return "parked", nil
}

// handleExpiry runs from the sweep for each expired confirmation. The
// content is never silently lost: it is either auto-committed to the
// configured fallback topic or reported back for re-surfacing.
func (p *Pipeline) handleExpiry(pc domain.PendingConfirmation) {
	unlock := p.lockContent(pc.Item.ID)
	defer unlock()

	ctx := context.Background()
	p.obs.ConfirmationClosed(true)

	if p.cfg.ExpireAutoCommitTopic != "" {
		topic, err := p.topics.Lookup(ctx, p.cfg.ExpireAutoCommitTopic)
		if err == nil {
			if err := p.commit(ctx, pc.Item.ID, pc.SignalText, topic); err == nil {
				return
			}
			p.logger.Error("expiry_auto_commit_failed", "content_id", pc.Item.ID, "topic_id", topic.ID)
		}
	}

	p.setState(pc.Item.ID, domain.StateDiscarded)
	p.notifyDiscarded(ctx, pc.Item.ID)
}

func (p *Pipeline) notifyDiscarded(ctx context.Context, contentID string) {
	if err := p.notifier.Discarded(ctx, contentID); err != nil {
		p.logger.Warn("discard_notification_failed", "content_id", contentID, "error", err)
	}
}

func (p *Pipeline) lockContent(contentID string) func() {
	actual, _ := p.locks.LoadOrStore(contentID, &sync.Mutex{})
	mu := actual.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (p *Pipeline) setState(contentID string, state domain.ContentState) {
	p.mu.Lock()
	p.states[contentID] = state
	p.mu.Unlock()
}

func (p *Pipeline) setCancel(contentID string, cancel context.CancelFunc) {
	p.mu.Lock()
	p.cancels[contentID] = cancel
	p.mu.Unlock()
}

func (p *Pipeline) clearCancel(contentID string) {
	p.mu.Lock()
	delete(p.cancels, contentID)
	p.mu.Unlock()
}

// rankedCandidates keeps the top-k candidates by confidence. When the
// backend returned only a single suggestion, that suggestion is the list.
func rankedCandidates(result domain.ClassificationResult, k int) []domain.RankedTopic {
	candidates := result.Candidates
	if len(candidates) == 0 && result.TopicID != "" {
		candidates = []domain.RankedTopic{{TopicID: result.TopicID, Confidence: result.Confidence}}
	}
	out := make([]domain.RankedTopic, len(candidates))
	copy(out, candidates)
	sortRanked(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func sortRanked(candidates []domain.RankedTopic) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
}
