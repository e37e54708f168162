// Package document turns uploaded invoice files into plain text for
// extraction.
package document

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedDocument is returned for content types that cannot be read.
	ErrUnsupportedDocument = errors.New("unsupported document type")

	// ErrEmptyDocument is returned when a document has no readable text.
	ErrEmptyDocument = errors.New("document contains no text")
)

// Transcriber reads the text in a PNG image
type Transcriber interface {
	Transcribe(ctx context.Context, pngData []byte) (string, error)
}

// Reader extracts text from documents. Images and PDF pages without a text
// layer need a Transcriber; without one they are rejected.
type Reader struct {
	transcriber Transcriber
}

// NewReader creates a Reader. transcriber may be nil.
func NewReader(transcriber Transcriber) *Reader {
	return &Reader{transcriber: transcriber}
}

// Text returns the text content of a document
func (r *Reader) Text(ctx context.Context, data []byte, contentType string) (string, error) {
	var (
		text string
		err  error
	)

	switch mimeType := normalizeMimeType(contentType); {
	case mimeType == "text/plain":
		text = string(data)
	case mimeType == "text/html":
		text, err = htmlText(data)
	case mimeType == "application/pdf":
		text, err = r.pdfText(ctx, data)
	case strings.HasPrefix(mimeType, "image/"):
		text, err = r.imageText(ctx, data, mimeType)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, mimeType)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

func (r *Reader) imageText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if r.transcriber == nil {
		return "", fmt.Errorf("%w: %s needs an image transcriber", ErrUnsupportedDocument, mimeType)
	}

	pngData, err := toPNG(data, mimeType)
	if err != nil {
		return "", err
	}

	text, err := r.transcriber.Transcribe(ctx, pngData)
	if err != nil {
		return "", fmt.Errorf("transcribing image: %w", err)
	}
	return text, nil
}

// ContentType determines the content type of an upload from its declared
// type, falling back to the file extension
func ContentType(declared, filename string) string {
	declared = normalizeMimeType(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return "text/plain"
	case ".html", ".htm":
		return "text/html"
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// normalizeMimeType lowercases a content type and drops its parameters
func normalizeMimeType(contentType string) string {
	mimeType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mimeType))
}
