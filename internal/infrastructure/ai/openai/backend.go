// Package openai adapts the OpenAI API as an AI backend: chat completions
// for classify/render, Whisper for voice transcription.
package openai

import (
	"context"
	"fmt"
	"io"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
	"github.com/kirillkom/sekretar-core/internal/infrastructure/ai/prompt"
)

type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, for proxies and tests.
	BaseURL         string
	ChatModel       string
	TranscribeModel string
}

type Backend struct {
	client          *goopenai.Client
	chatModel       string
	transcribeModel string
}

func New(cfg Config) *Backend {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = goopenai.GPT4oMini
	}
	transcribeModel := cfg.TranscribeModel
	if transcribeModel == "" {
		transcribeModel = goopenai.Whisper1
	}
	return &Backend{
		client:          goopenai.NewClientWithConfig(clientCfg),
		chatModel:       chatModel,
		transcribeModel: transcribeModel,
	}
}

func (b *Backend) Name() string { return "openai" }

func (b *Backend) Classify(ctx context.Context, text string, candidates []domain.TopicCandidate) (domain.ClassificationResult, error) {
	raw, err := b.completeJSON(ctx, prompt.BuildClassifyPrompt(text, candidates))
	if err != nil {
		return domain.ClassificationResult{}, wrapTemporaryIfNeeded("openai classify", err)
	}
	return prompt.ParseClassification(raw)
}

func (b *Backend) Render(ctx context.Context, text string, topic domain.TopicCandidate) (domain.RenderedNote, error) {
	raw, err := b.completeJSON(ctx, prompt.BuildRenderPrompt(text, topic))
	if err != nil {
		return domain.RenderedNote{}, wrapTemporaryIfNeeded("openai render", err)
	}
	return prompt.ParseRenderedNote(raw)
}

func (b *Backend) Transcribe(ctx context.Context, audio io.Reader, mimeType string) (string, error) {
	resp, err := b.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    b.transcribeModel,
		Reader:   audio,
		FilePath: "voice" + extensionForMime(mimeType),
	})
	if err != nil {
		return "", wrapTemporaryIfNeeded("openai transcribe", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (b *Backend) completeJSON(ctx context.Context, userPrompt string) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       b.chatModel,
		Temperature: 0.1,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// extensionForMime names the upload so the API recognizes the container.
func extensionForMime(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "ogg"), strings.Contains(mimeType, "opus"):
		return ".ogg"
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return ".mp3"
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		return ".m4a"
	default:
		return ".ogg"
	}
}
