package prompt

import (
	"strings"
	"testing"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

func TestParseClassificationClampsConfidenceAndStripsProse(t *testing.T) {
	raw := "Here is the answer:\n" + `{"topic_id":"ideas","confidence":1.4,"candidates":[{"topic_id":"ideas","confidence":-0.2},{"topic_id":"","confidence":0.5}]}`

	result, err := ParseClassification(raw)
	if err != nil {
		t.Fatalf("ParseClassification() error = %v", err)
	}
	if result.TopicID != "ideas" || result.Confidence != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].Confidence != 0 {
		t.Fatalf("unexpected candidates: %+v", result.Candidates)
	}
}

func TestParseClassificationRejectsMalformedPayload(t *testing.T) {
	if _, err := ParseClassification("no json here"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBuildClassifyPromptListsCandidates(t *testing.T) {
	out := BuildClassifyPrompt("note text", []domain.TopicCandidate{
		{ID: "books", Title: "Books", Description: "Reading list"},
	})
	if !strings.Contains(out, "id=books") || !strings.Contains(out, "Reading list") || !strings.Contains(out, "note text") {
		t.Fatalf("prompt incomplete: %s", out)
	}
}

func TestBuildRenderPromptUsesTopicPolicy(t *testing.T) {
	out := BuildRenderPrompt("note", domain.TopicCandidate{ID: "goals", Title: "Goals", FormatPolicy: "state as a measurable goal"})
	if !strings.Contains(out, "state as a measurable goal") {
		t.Fatalf("policy missing: %s", out)
	}
}

func TestParseRenderedNoteDefaultsTags(t *testing.T) {
	note, err := ParseRenderedNote(`{"title":"T","body":"B"}`)
	if err != nil {
		t.Fatalf("ParseRenderedNote() error = %v", err)
	}
	if note.Tags == nil || len(note.Tags) != 0 {
		t.Fatalf("tags = %#v, want empty non-nil", note.Tags)
	}
}

func TestParseRenderedNoteNormalizesTags(t *testing.T) {
	note, err := ParseRenderedNote(`{"title":"T","body":"B","tags":["Go","#reading"," ","##x"]}`)
	if err != nil {
		t.Fatalf("ParseRenderedNote() error = %v", err)
	}
	want := []string{"#go", "#reading", "#x"}
	if len(note.Tags) != len(want) {
		t.Fatalf("tags = %#v, want %#v", note.Tags, want)
	}
	for i := range want {
		if note.Tags[i] != want[i] {
			t.Fatalf("tags[%d] = %q, want %q", i, note.Tags[i], want[i])
		}
	}
}
