package taskengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
	"github.com/kirillkom/sekretar-core/internal/core/ports"
)

// Handler executes one attempt of a job and returns the derived value.
type Handler func(ctx context.Context, job domain.Job) (string, error)

// Observer receives engine metrics. Satisfied by metrics.EngineMetrics.
type Observer interface {
	JobFinished(service, kind, status string)
	RetryScheduled(service, kind string)
	ObserveAttempt(service, kind string, duration time.Duration)
	SetQueueDepth(n int)
}

type noopObserver struct{}

func (noopObserver) JobFinished(string, string, string)           {}
func (noopObserver) RetryScheduled(string, string)                {}
func (noopObserver) ObserveAttempt(string, string, time.Duration) {}
func (noopObserver) SetQueueDepth(int)                            {}

type Config struct {
	Service     string
	Workers     int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// DeadLetterBuffer bounds the dead-letter channel; overflow is logged
	// and dropped from the channel, never from the result callback.
	DeadLetterBuffer int
	// Clock overrides wall-clock time in tests.
	Clock func() time.Time
}

func (c Config) normalize() Config {
	out := c
	if out.Service == "" {
		out.Service = "taskengine"
	}
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = 2 * time.Second
	}
	if out.BackoffCap < out.BackoffBase {
		out.BackoffCap = out.BackoffBase
	}
	if out.DeadLetterBuffer <= 0 {
		out.DeadLetterBuffer = 64
	}
	if out.Clock == nil {
		out.Clock = func() time.Time { return time.Now().UTC() }
	}
	return out
}

// Engine runs typed jobs with bounded concurrency, re-enqueues failures
// with exponential backoff, and dead-letters jobs that exhaust their
// attempt budget. In-flight durability lives in the JobStateStore; the
// engine itself holds no state worth surviving a restart.
type Engine struct {
	cfg    Config
	store  ports.JobStateStore
	logger *slog.Logger
	obs    Observer

	handlers    map[domain.JobKind]Handler
	onResult    func(domain.JobResult)
	deadLetters chan domain.JobResult

	mu    sync.Mutex
	queue *jobQueue
	seq   uint64
	wake  chan struct{}

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(cfg Config, store ports.JobStateStore, logger *slog.Logger, obs Observer) *Engine {
	cfg = cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	if obs == nil {
		obs = noopObserver{}
	}
	return &Engine{
		cfg:         cfg,
		store:       store,
		logger:      logger,
		obs:         obs,
		handlers:    make(map[domain.JobKind]Handler),
		deadLetters: make(chan domain.JobResult, cfg.DeadLetterBuffer),
		queue:       newJobQueue(),
		wake:        make(chan struct{}, 1),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RegisterHandler binds a job kind to its handler. Must happen before Run.
func (e *Engine) RegisterHandler(kind domain.JobKind, handler Handler) {
	e.handlers[kind] = handler
}

// OnResult registers the single async result callback. Every submitted job
// produces exactly one result: a success value or a terminal failure.
func (e *Engine) OnResult(fn func(domain.JobResult)) {
	e.onResult = fn
}

// DeadLetters exposes terminally failed jobs for operator visibility.
// Nothing in the engine ever retries them again.
func (e *Engine) DeadLetters() <-chan domain.JobResult {
	return e.deadLetters
}

// Submit accepts a job, persists its durable state and queues it for the
// next free worker.
func (e *Engine) Submit(ctx context.Context, kind domain.JobKind, contentID string, payload json.RawMessage) (string, error) {
	if _, ok := e.handlers[kind]; !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "submit job", fmt.Errorf("no handler for kind %q", kind))
	}

	now := e.cfg.Clock()
	job := domain.Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		ContentID:   contentID,
		Payload:     payload,
		Attempts:    0,
		MaxAttempts: e.cfg.MaxAttempts,
		EligibleAt:  now,
		SubmittedAt: now,
	}

	if e.store != nil {
		if err := e.store.PersistJob(ctx, job); err != nil {
			return "", fmt.Errorf("persist job state: %w", err)
		}
	}
	e.enqueue(job)
	return job.ID, nil
}

// Resume re-enqueues every non-terminal job from durable state. Past
// eligibility times collapse to now; re-running an attempt that finished
// right before a crash is acceptable (at-least-once).
func (e *Engine) Resume(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	jobs, err := e.store.LoadPendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("load durable job state: %w", err)
	}
	now := e.cfg.Clock()
	for _, job := range jobs {
		if job.EligibleAt.Before(now) {
			job.EligibleAt = now
		}
		e.enqueue(job)
	}
	if len(jobs) > 0 {
		e.logger.Info("resumed_jobs", "count", len(jobs))
	}
	return nil
}

// Run blocks, dispatching eligible jobs to a bounded worker pool until the
// context is done.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	work := make(chan domain.Job)

	g.Go(func() error { return e.dispatch(ctx, work) })
	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case job := <-work:
					e.runAttempt(ctx, job)
				}
			}
		})
	}
	return g.Wait()
}

func (e *Engine) dispatch(ctx context.Context, work chan<- domain.Job) error {
	for {
		e.mu.Lock()
		job, ok := e.queue.popEligible(e.cfg.Clock())
		if ok {
			e.obs.SetQueueDepth(e.queue.Len())
			e.mu.Unlock()
			select {
			case work <- job:
			case <-ctx.Done():
				return nil
			}
			continue
		}
		next, any := e.queue.peekEligibleAt()
		e.mu.Unlock()

		if !any {
			select {
			case <-ctx.Done():
				return nil
			case <-e.wake:
			}
			continue
		}

		timer := time.NewTimer(next.Sub(e.cfg.Clock()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-e.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (e *Engine) runAttempt(ctx context.Context, job domain.Job) {
	start := e.cfg.Clock()
	value, err := e.invoke(ctx, job)
	e.obs.ObserveAttempt(e.cfg.Service, string(job.Kind), e.cfg.Clock().Sub(start))

	if err == nil {
		e.finish(ctx, job, domain.JobStatusSucceeded, "")
		e.deliver(domain.JobResult{JobID: job.ID, Kind: job.Kind, ContentID: job.ContentID, Value: value})
		return
	}

	attempts := job.Attempts + 1
	if attempts < job.MaxAttempts {
		delay := e.jitteredDelay(attempts)
		job.Attempts = attempts
		job.EligibleAt = e.cfg.Clock().Add(delay)
		if e.store != nil {
			if perr := e.store.PersistJob(ctx, job); perr != nil {
				e.logger.Warn("persist_retry_state_failed", "job_id", job.ID, "error", perr)
			}
		}
		e.obs.RetryScheduled(e.cfg.Service, string(job.Kind))
		e.logger.Warn("job_retry_scheduled",
			"job_id", job.ID,
			"kind", job.Kind,
			"attempt", attempts,
			"max_attempts", job.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		e.enqueue(job)
		return
	}

	terminal := domain.WrapError(domain.ErrJobExhausted, "run job "+string(job.Kind), err)
	e.finish(ctx, job, domain.JobStatusDead, terminal.Error())
	result := domain.JobResult{JobID: job.ID, Kind: job.Kind, ContentID: job.ContentID, Err: terminal}
	select {
	case e.deadLetters <- result:
	default:
		e.logger.Error("dead_letter_channel_full", "job_id", job.ID, "kind", job.Kind)
	}
	e.deliver(result)
}

// invoke runs the handler, converting a panic into an ordinary failure.
func (e *Engine) invoke(ctx context.Context, job domain.Job) (value string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	handler, ok := e.handlers[job.Kind]
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "run job", fmt.Errorf("no handler for kind %q", job.Kind))
	}
	return handler(ctx, job)
}

func (e *Engine) finish(ctx context.Context, job domain.Job, status domain.JobStatus, errMessage string) {
	if e.store != nil {
		if err := e.store.MarkTerminal(ctx, job.ID, status, errMessage); err != nil {
			e.logger.Warn("mark_terminal_failed", "job_id", job.ID, "status", status, "error", err)
		}
	}
	e.obs.JobFinished(e.cfg.Service, string(job.Kind), string(status))
}

func (e *Engine) deliver(result domain.JobResult) {
	if e.onResult != nil {
		e.onResult(result)
	}
}

func (e *Engine) enqueue(job domain.Job) {
	e.mu.Lock()
	e.seq++
	e.queue.push(job, e.seq)
	e.obs.SetQueueDepth(e.queue.Len())
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) jitteredDelay(attempt int) time.Duration {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return backoffDelay(e.cfg.BackoffBase, e.cfg.BackoffCap, attempt, e.rng)
}
