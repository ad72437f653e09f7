package taskengine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

type jobStoreFake struct {
	mu        sync.Mutex
	persisted []domain.Job
	terminal  map[string]domain.JobStatus
	pending   []domain.Job
	loadErr   error
}

func newJobStoreFake() *jobStoreFake {
	return &jobStoreFake{terminal: make(map[string]domain.JobStatus)}
}

func (f *jobStoreFake) PersistJob(_ context.Context, job domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted = append(f.persisted, job)
	return nil
}

func (f *jobStoreFake) LoadPendingJobs(context.Context) ([]domain.Job, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.pending, nil
}

func (f *jobStoreFake) MarkTerminal(_ context.Context, jobID string, status domain.JobStatus, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminal[jobID] = status
	return nil
}

func (f *jobStoreFake) persistCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.persisted)
}

func (f *jobStoreFake) terminalStatus(jobID string) (domain.JobStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.terminal[jobID]
	return s, ok
}

func startEngine(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func fastConfig() Config {
	return Config{
		Service:     "test",
		Workers:     2,
		MaxAttempts: 3,
		BackoffBase: 2 * time.Millisecond,
		BackoffCap:  10 * time.Millisecond,
	}
}

func awaitResult(t *testing.T, ch <-chan domain.JobResult) domain.JobResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for job result")
		return domain.JobResult{}
	}
}

func TestSubmitRunsJobAndDeliversResult(t *testing.T) {
	store := newJobStoreFake()
	engine := New(fastConfig(), store, nil, nil)
	engine.RegisterHandler(domain.JobKindFetchLinkMeta, func(_ context.Context, job domain.Job) (string, error) {
		return "Dune: official site", nil
	})

	results := make(chan domain.JobResult, 1)
	engine.OnResult(func(r domain.JobResult) { results <- r })
	startEngine(t, engine)

	jobID, err := engine.Submit(context.Background(), domain.JobKindFetchLinkMeta, "c1", json.RawMessage(`{"url":"https://dune.example"}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	r := awaitResult(t, results)
	if r.JobID != jobID || r.ContentID != "c1" || r.Err != nil {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r.Value != "Dune: official site" {
		t.Fatalf("unexpected value: %q", r.Value)
	}
	if status, ok := store.terminalStatus(jobID); !ok || status != domain.JobStatusSucceeded {
		t.Fatalf("expected succeeded terminal state, got %v %v", status, ok)
	}
}

func TestSubmitRejectsUnknownKind(t *testing.T) {
	engine := New(fastConfig(), nil, nil, nil)
	if _, err := engine.Submit(context.Background(), domain.JobKind("mystery"), "c1", nil); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestFailingJobRetriesThenSucceeds(t *testing.T) {
	store := newJobStoreFake()
	engine := New(fastConfig(), store, nil, nil)

	var mu sync.Mutex
	attempts := 0
	engine.RegisterHandler(domain.JobKindFetchLinkMeta, func(context.Context, domain.Job) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return "", errors.New("connection reset")
		}
		return "fetched", nil
	})

	results := make(chan domain.JobResult, 1)
	engine.OnResult(func(r domain.JobResult) { results <- r })
	startEngine(t, engine)

	if _, err := engine.Submit(context.Background(), domain.JobKindFetchLinkMeta, "c1", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	r := awaitResult(t, results)
	if r.Err != nil || r.Value != "fetched" {
		t.Fatalf("expected eventual success, got %+v", r)
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	// Submit plus two retry persists.
	if store.persistCount() != 3 {
		t.Fatalf("expected 3 durable writes, got %d", store.persistCount())
	}
}

func TestExhaustedJobDeadLettersExactlyOnce(t *testing.T) {
	store := newJobStoreFake()
	engine := New(fastConfig(), store, nil, nil)

	var mu sync.Mutex
	attempts := 0
	engine.RegisterHandler(domain.JobKindTranscribe, func(context.Context, domain.Job) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return "", errors.New("stt upstream down")
	})

	results := make(chan domain.JobResult, 1)
	engine.OnResult(func(r domain.JobResult) { results <- r })
	startEngine(t, engine)

	jobID, err := engine.Submit(context.Background(), domain.JobKindTranscribe, "c1", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	r := awaitResult(t, results)
	if !domain.IsKind(r.Err, domain.ErrJobExhausted) {
		t.Fatalf("expected exhausted kind, got %v", r.Err)
	}

	select {
	case dl := <-engine.DeadLetters():
		if dl.JobID != jobID {
			t.Fatalf("unexpected dead letter: %+v", dl)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a dead-letter event")
	}

	mu.Lock()
	got := attempts
	mu.Unlock()
	if got != 3 {
		t.Fatalf("expected exactly max attempts, got %d", got)
	}
	if status, _ := store.terminalStatus(jobID); status != domain.JobStatusDead {
		t.Fatalf("expected dead terminal state, got %v", status)
	}

	// No second dead-letter event may ever fire.
	select {
	case dl := <-engine.DeadLetters():
		t.Fatalf("unexpected extra dead letter: %+v", dl)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandlerPanicIsAFailure(t *testing.T) {
	engine := New(Config{Service: "test", Workers: 1, MaxAttempts: 1, BackoffBase: time.Millisecond, BackoffCap: time.Millisecond}, nil, nil, nil)
	engine.RegisterHandler(domain.JobKindExtractFileText, func(context.Context, domain.Job) (string, error) {
		panic("corrupt file")
	})

	results := make(chan domain.JobResult, 1)
	engine.OnResult(func(r domain.JobResult) { results <- r })
	startEngine(t, engine)

	if _, err := engine.Submit(context.Background(), domain.JobKindExtractFileText, "c1", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	r := awaitResult(t, results)
	if !domain.IsKind(r.Err, domain.ErrJobExhausted) {
		t.Fatalf("expected terminal failure after panic, got %v", r.Err)
	}
}

func TestResumeReenqueuesDurableJobs(t *testing.T) {
	store := newJobStoreFake()
	past := time.Now().UTC().Add(-time.Hour)
	store.pending = []domain.Job{{
		ID:          "j1",
		Kind:        domain.JobKindFetchLinkMeta,
		ContentID:   "c1",
		Attempts:    1,
		MaxAttempts: 3,
		EligibleAt:  past,
		SubmittedAt: past,
	}}

	engine := New(fastConfig(), store, nil, nil)
	engine.RegisterHandler(domain.JobKindFetchLinkMeta, func(context.Context, domain.Job) (string, error) {
		return "recovered", nil
	})

	results := make(chan domain.JobResult, 1)
	engine.OnResult(func(r domain.JobResult) { results <- r })

	if err := engine.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	startEngine(t, engine)

	r := awaitResult(t, results)
	if r.JobID != "j1" || r.Value != "recovered" {
		t.Fatalf("expected resumed job to run, got %+v", r)
	}
}
