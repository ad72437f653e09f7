package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

func geminiAnswer(text string) string {
	payload := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func TestClassifySendsTopicsAndParsesResult(t *testing.T) {
	var capturedBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&capturedBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(geminiAnswer(`{"topic_id":"books","confidence":0.9,"rationale":"reading list","candidates":[{"topic_id":"books","confidence":0.9}]}`)))
	}))
	defer server.Close()

	backend := New(Config{APIKey: "k", BaseURL: server.URL, Model: "test-model"})
	result, err := backend.Classify(context.Background(), "dune by frank herbert", []domain.TopicCandidate{
		{ID: "books", Title: "Books"},
		{ID: "ideas", Title: "Ideas"},
	})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.TopicID != "books" || result.Confidence != 0.9 {
		t.Fatalf("unexpected result: %+v", result)
	}

	raw, _ := json.Marshal(capturedBody)
	if !strings.Contains(string(raw), "id=books") || !strings.Contains(string(raw), "dune by frank herbert") {
		t.Fatalf("prompt missing topics or note text: %s", raw)
	}
}

func TestClassifyWrapsRetryableStatusAsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	backend := New(Config{APIKey: "k", BaseURL: server.URL})
	_, err := backend.Classify(context.Background(), "text", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestClassifyKeepsClientErrorPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusBadRequest)
	}))
	defer server.Close()

	backend := New(Config{APIKey: "bad", BaseURL: server.URL})
	_, err := backend.Classify(context.Background(), "text", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("client error must not be temporary: %v", err)
	}
}

func TestTranscribeSendsInlineAudio(t *testing.T) {
	var capturedBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		raw, _ := json.Marshal(payload)
		capturedBody = string(raw)
		_, _ = w.Write([]byte(geminiAnswer("buy milk tomorrow")))
	}))
	defer server.Close()

	backend := New(Config{APIKey: "k", BaseURL: server.URL})
	text, err := backend.Transcribe(context.Background(), strings.NewReader("fake-audio"), "audio/ogg")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "buy milk tomorrow" {
		t.Fatalf("transcript = %q", text)
	}
	if !strings.Contains(capturedBody, "inline_data") || !strings.Contains(capturedBody, "audio/ogg") {
		t.Fatalf("request missing inline audio: %s", capturedBody)
	}
}
