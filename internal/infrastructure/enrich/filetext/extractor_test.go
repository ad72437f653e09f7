package filetext

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

type fakeMedia struct {
	payloads map[string]string
}

func (f *fakeMedia) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.payloads[key] = string(raw)
	return nil
}

func (f *fakeMedia) Open(_ context.Context, key string) (io.ReadCloser, error) {
	payload, ok := f.payloads[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(strings.NewReader(payload)), nil
}

func TestExtractPlainTextFile(t *testing.T) {
	media := &fakeMedia{payloads: map[string]string{
		"files/notes.txt": "  shopping list:\nmilk\neggs  ",
	}}
	extractor := NewExtractor(media)

	text, err := extractor.Extract(context.Background(), domain.MediaRef{
		StorageKey: "files/notes.txt",
		Filename:   "notes.txt",
		MimeType:   "text/plain",
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "shopping list:\nmilk\neggs" {
		t.Fatalf("text = %q", text)
	}
}

func TestExtractRejectsBinaryNonPDF(t *testing.T) {
	media := &fakeMedia{payloads: map[string]string{
		"files/blob.bin": "\xff\xfe\x00\x01",
	}}
	extractor := NewExtractor(media)

	_, err := extractor.Extract(context.Background(), domain.MediaRef{
		StorageKey: "files/blob.bin",
		Filename:   "blob.bin",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestExtractMalformedPDFFails(t *testing.T) {
	media := &fakeMedia{payloads: map[string]string{
		"files/broken.pdf": "%PDF-1.4 not really a pdf",
	}}
	extractor := NewExtractor(media)

	_, err := extractor.Extract(context.Background(), domain.MediaRef{
		StorageKey: "files/broken.pdf",
		Filename:   "broken.pdf",
		MimeType:   "application/pdf",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}
