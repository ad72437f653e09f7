package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
	"github.com/kirillkom/sekretar-core/internal/core/ports"
)

type transcribePayload struct {
	StorageKey string `json:"storage_key"`
	MimeType   string `json:"mime_type"`
}

type linkPayload struct {
	URL string `json:"url"`
}

type filePayload struct {
	StorageKey string `json:"storage_key"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
}

// enrichmentJob builds the background job for a content item, if its kind
// needs one. Plain text classifies as-is. A link item without a resolvable
// URL is also treated as plain text.
func enrichmentJob(item domain.ContentItem) (domain.JobKind, json.RawMessage, bool) {
	switch item.Kind {
	case domain.KindVoice:
		if item.Media == nil {
			return "", nil, false
		}
		payload, _ := json.Marshal(transcribePayload{
			StorageKey: item.Media.StorageKey,
			MimeType:   item.Media.MimeType,
		})
		return domain.JobKindTranscribe, payload, true
	case domain.KindLink:
		url := firstURL(item.Text)
		if url == "" {
			return "", nil, false
		}
		payload, _ := json.Marshal(linkPayload{URL: url})
		return domain.JobKindFetchLinkMeta, payload, true
	case domain.KindFile:
		if item.Media == nil {
			return "", nil, false
		}
		payload, _ := json.Marshal(filePayload{
			StorageKey: item.Media.StorageKey,
			Filename:   item.Media.Filename,
			MimeType:   item.Media.MimeType,
		})
		return domain.JobKindExtractFileText, payload, true
	default:
		return "", nil, false
	}
}

// firstURL picks the first http(s) token out of the message text.
func firstURL(text string) string {
	for _, field := range strings.Fields(text) {
		if strings.HasPrefix(field, "http://") || strings.HasPrefix(field, "https://") {
			return field
		}
	}
	return ""
}

// Transcriber is the slice of the provider gateway enrichment uses.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, mimeType string) (string, error)
}

// Enricher holds the task engine handlers that derive text from media.
// Each method matches the engine handler signature; failures surface to
// the engine, which owns retries and dead-lettering.
type Enricher struct {
	transcriber Transcriber
	media       ports.MediaStore
	links       ports.LinkFetcher
	files       ports.FileTextExtractor
}

func NewEnricher(transcriber Transcriber, media ports.MediaStore, links ports.LinkFetcher, files ports.FileTextExtractor) *Enricher {
	return &Enricher{transcriber: transcriber, media: media, links: links, files: files}
}

// TranscribeJob converts stored voice audio to text.
func (e *Enricher) TranscribeJob(ctx context.Context, job domain.Job) (string, error) {
	var payload transcribePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode transcribe payload", err)
	}
	audio, err := e.media.Open(ctx, payload.StorageKey)
	if err != nil {
		return "", fmt.Errorf("open audio %s: %w", payload.StorageKey, err)
	}
	defer audio.Close()

	text, err := e.transcriber.Transcribe(ctx, audio, payload.MimeType)
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", payload.StorageKey, err)
	}
	return text, nil
}

// FetchLinkJob resolves page metadata for a link item.
func (e *Enricher) FetchLinkJob(ctx context.Context, job domain.Job) (string, error) {
	var payload linkPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode link payload", err)
	}
	title, description, err := e.links.FetchMetadata(ctx, payload.URL)
	if err != nil {
		return "", fmt.Errorf("fetch metadata for %s: %w", payload.URL, err)
	}
	if description == "" {
		return title, nil
	}
	return title + "\n" + description, nil
}

// ExtractFileJob derives text from a stored file payload.
func (e *Enricher) ExtractFileJob(ctx context.Context, job domain.Job) (string, error) {
	var payload filePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode file payload", err)
	}
	text, err := e.files.Extract(ctx, domain.MediaRef{
		StorageKey: payload.StorageKey,
		Filename:   payload.Filename,
		MimeType:   payload.MimeType,
	})
	if err != nil {
		return "", fmt.Errorf("extract text from %s: %w", payload.Filename, err)
	}
	return text, nil
}
