package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

func TestLoadTopicsMissingFileUsesDefaults(t *testing.T) {
	topics, err := LoadTopics(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadTopics() error = %v", err)
	}
	if len(topics) != len(DefaultTopics()) {
		t.Fatalf("expected default topics, got %d", len(topics))
	}
}

func TestLoadTopicsParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	content := `topics:
  - id: work
    title: Work
    description: Job notes
    format_policy: "Project name first."
  - id: archive
    title: Archive
    active: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}

	topics, err := LoadTopics(path)
	if err != nil {
		t.Fatalf("LoadTopics() error = %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(topics))
	}
	if !topics[0].Active || topics[0].FormatPolicy != "Project name first." {
		t.Fatalf("unexpected first topic: %+v", topics[0])
	}
	if topics[1].Active {
		t.Fatalf("expected second topic inactive")
	}
}

func TestLoadTopicsRejectsEntryWithoutID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	if err := os.WriteFile(path, []byte("topics:\n  - title: NoID\n"), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	if _, err := LoadTopics(path); err == nil {
		t.Fatalf("expected error")
	}
}

type fakeSeeder struct {
	count  int
	seeded []domain.TopicCandidate
}

func (f *fakeSeeder) Count(context.Context) (int, error) { return f.count, nil }

func (f *fakeSeeder) SeedTopics(_ context.Context, topics []domain.TopicCandidate) error {
	f.seeded = topics
	return nil
}

func TestEnsureTopicsSeedsOnlyWhenEmpty(t *testing.T) {
	empty := &fakeSeeder{count: 0}
	seeded, err := EnsureTopics(context.Background(), empty, "")
	if err != nil {
		t.Fatalf("EnsureTopics() error = %v", err)
	}
	if !seeded || len(empty.seeded) == 0 {
		t.Fatalf("expected defaults seeded")
	}

	full := &fakeSeeder{count: 4}
	seeded, err = EnsureTopics(context.Background(), full, "")
	if err != nil {
		t.Fatalf("EnsureTopics() error = %v", err)
	}
	if seeded || full.seeded != nil {
		t.Fatalf("provisioned install must not be reseeded")
	}
}
