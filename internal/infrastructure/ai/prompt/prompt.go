// Package prompt holds the instructions and response parsing shared by
// every AI backend. Backends differ in transport, not in what they ask.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

const maxSnippet = 4000

func BuildClassifyPrompt(text string, candidates []domain.TopicCandidate) string {
	snippet := text
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}

	var topics strings.Builder
	for _, candidate := range candidates {
		topics.WriteString(fmt.Sprintf("- id=%s title=%q", candidate.ID, candidate.Title))
		if candidate.Description != "" {
			topics.WriteString(fmt.Sprintf(" description=%q", candidate.Description))
		}
		topics.WriteString("\n")
	}

	return fmt.Sprintf(`You are a note classifier.
Pick the single best topic for the note from the list below.
Return strict JSON object with keys:
topic_id (string, one of the listed ids, or empty string if nothing fits),
confidence (number from 0 to 1),
rationale (string, one sentence),
candidates (array of {topic_id, confidence} for up to 5 plausible topics, best first).
No markdown, no extra keys.

Topics:
%s
Note:
%s`, topics.String(), snippet)
}

func BuildRenderPrompt(text string, topic domain.TopicCandidate) string {
	snippet := text
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}

	policy := topic.FormatPolicy
	if policy == "" {
		policy = "Short title, tidy body, keep the author's wording where possible."
	}

	return fmt.Sprintf(`You are a note formatter for the topic %q.
Formatting policy: %s
Return strict JSON object with keys:
title (string), body (string), tags (array of lowercase strings without '#').
No markdown fences, no extra keys.

Note:
%s`, topic.Title, policy, snippet)
}

type classifyResponse struct {
	TopicID    string  `json:"topic_id"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
	Candidates []struct {
		TopicID    string  `json:"topic_id"`
		Confidence float64 `json:"confidence"`
	} `json:"candidates"`
}

// ParseClassification decodes a backend's classify answer. Confidence
// values are clamped into [0,1]; a malformed payload is an error, not a
// zero-confidence answer.
func ParseClassification(raw string) (domain.ClassificationResult, error) {
	var response classifyResponse
	if err := json.Unmarshal([]byte(ExtractJSONObject(raw)), &response); err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("parse classification json: %w", err)
	}

	result := domain.ClassificationResult{
		TopicID:    response.TopicID,
		Confidence: clamp01(response.Confidence),
		Rationale:  response.Rationale,
	}
	for _, candidate := range response.Candidates {
		if candidate.TopicID == "" {
			continue
		}
		result.Candidates = append(result.Candidates, domain.RankedTopic{
			TopicID:    candidate.TopicID,
			Confidence: clamp01(candidate.Confidence),
		})
	}
	return result, nil
}

// ParseRenderedNote decodes a backend's render answer.
func ParseRenderedNote(raw string) (domain.RenderedNote, error) {
	var note domain.RenderedNote
	if err := json.Unmarshal([]byte(ExtractJSONObject(raw)), &note); err != nil {
		return domain.RenderedNote{}, fmt.Errorf("parse rendered note json: %w", err)
	}
	note.Tags = normalizeTags(note.Tags)
	return note, nil
}

// normalizeTags lowercases tags and guarantees a single leading '#'.
func normalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(tag), "#"))
		if tag == "" {
			continue
		}
		tag = strings.ToLower(tag)
		normalized = append(normalized, "#"+tag)
	}
	return normalized
}

// ExtractJSONObject trims any prose a model wrapped around its JSON.
func ExtractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
