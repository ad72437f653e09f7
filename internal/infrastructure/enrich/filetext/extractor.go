// Package filetext derives classification text from stored file payloads.
// Plain UTF-8 files are passed through; PDFs get their text layer pulled.
package filetext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
	"github.com/kirillkom/sekretar-core/internal/core/ports"
)

const maxFileBytes = 16 * 1024 * 1024

type Extractor struct {
	media ports.MediaStore
}

func NewExtractor(media ports.MediaStore) *Extractor {
	return &Extractor{media: media}
}

func (e *Extractor) Extract(ctx context.Context, ref domain.MediaRef) (string, error) {
	reader, err := e.media.Open(ctx, ref.StorageKey)
	if err != nil {
		return "", fmt.Errorf("open stored file: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, maxFileBytes))
	if err != nil {
		return "", fmt.Errorf("read stored file: %w", err)
	}

	if isPDF(ref, raw) {
		return extractPDFText(raw)
	}

	if !utf8.Valid(raw) {
		return "", fmt.Errorf("unsupported binary format: %s", ref.Filename)
	}
	return strings.TrimSpace(string(raw)), nil
}

func isPDF(ref domain.MediaRef, raw []byte) bool {
	if strings.Contains(ref.MimeType, "pdf") {
		return true
	}
	if strings.EqualFold(filepath.Ext(ref.Filename), ".pdf") {
		return true
	}
	return bytes.HasPrefix(raw, []byte("%PDF-"))
}

func extractPDFText(raw []byte) (string, error) {
	doc, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	textReader, err := doc.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	text, err := io.ReadAll(textReader)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(string(text)), nil
}
