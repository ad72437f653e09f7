// Package gemini adapts the Google Gemini generateContent API as an AI
// backend. Voice transcription sends the audio inline with the request.
package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
	"github.com/kirillkom/sekretar-core/internal/infrastructure/ai/prompt"
)

type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, for proxies and tests.
	BaseURL string
	Model   string
}

type Backend struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func New(cfg Config) *Backend {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Backend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (b *Backend) Name() string { return "gemini" }

func (b *Backend) Classify(ctx context.Context, text string, candidates []domain.TopicCandidate) (domain.ClassificationResult, error) {
	raw, err := b.generateJSON(ctx, "classify", []part{{Text: prompt.BuildClassifyPrompt(text, candidates)}})
	if err != nil {
		return domain.ClassificationResult{}, wrapTemporaryIfNeeded("gemini classify", err)
	}
	return prompt.ParseClassification(raw)
}

func (b *Backend) Render(ctx context.Context, text string, topic domain.TopicCandidate) (domain.RenderedNote, error) {
	raw, err := b.generateJSON(ctx, "render", []part{{Text: prompt.BuildRenderPrompt(text, topic)}})
	if err != nil {
		return domain.RenderedNote{}, wrapTemporaryIfNeeded("gemini render", err)
	}
	return prompt.ParseRenderedNote(raw)
}

func (b *Backend) Transcribe(ctx context.Context, audio io.Reader, mimeType string) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if mimeType == "" {
		mimeType = "audio/ogg"
	}

	parts := []part{
		{Text: "Transcribe this audio verbatim. Return only the spoken text, no commentary."},
		{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}},
	}
	raw, err := b.generate(ctx, "transcribe", parts, nil)
	if err != nil {
		return "", wrapTemporaryIfNeeded("gemini transcribe", err)
	}
	return strings.TrimSpace(raw), nil
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
	Temperature      float64 `json:"temperature"`
}

func (b *Backend) generateJSON(ctx context.Context, operation string, parts []part) (string, error) {
	return b.generate(ctx, operation, parts, &generationConfig{
		ResponseMimeType: "application/json",
		Temperature:      0.1,
	})
}

func (b *Backend) generate(ctx context.Context, operation string, parts []part, genCfg *generationConfig) (string, error) {
	request := map[string]any{
		"contents": []map[string]any{
			{"parts": parts},
		},
	}
	if genCfg != nil {
		request["generationConfig"] = genCfg
	}

	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	path := fmt.Sprintf("/models/%s:generateContent", b.model)
	if err := b.postJSON(ctx, path, request, &response, operation); err != nil {
		return "", err
	}
	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini %s: empty response", operation)
	}

	var out strings.Builder
	for _, p := range response.Candidates[0].Content.Parts {
		out.WriteString(p.Text)
	}
	return strings.TrimSpace(out.String()), nil
}
