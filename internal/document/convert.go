package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// pdfText returns the text layer of every page. Pages without one are
// rendered and transcribed when a Transcriber is configured.
func (r *Reader) pdfText(ctx context.Context, pdfData []byte) (string, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		text, err := doc.Text(page)
		if err != nil {
			return "", fmt.Errorf("reading PDF page %d: %w", page+1, err)
		}

		// Scanned pages have no text layer
		if strings.TrimSpace(text) == "" && r.transcriber != nil {
			text, err = r.transcribePage(ctx, doc, page)
			if err != nil {
				return "", err
			}
		}

		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimSpace(text))
	}

	return b.String(), nil
}

func (r *Reader) transcribePage(ctx context.Context, doc *fitz.Document, page int) (string, error) {
	img, err := doc.Image(page)
	if err != nil {
		return "", fmt.Errorf("rendering PDF page %d: %w", page+1, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding PNG: %w", err)
	}

	text, err := r.transcriber.Transcribe(ctx, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("transcribing PDF page %d: %w", page+1, err)
	}
	return text, nil
}

// toPNG converts any supported image format to PNG
func toPNG(imageData []byte, mimeType string) ([]byte, error) {
	if mimeType == "image/png" && !isHEICFormat(imageData) {
		return imageData, nil
	}

	var img image.Image
	var err error

	// Go's standard image package doesn't support HEIC/HEIF
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") {
				return nil, fmt.Errorf("%w: image format not recognised (supported: JPEG, PNG, GIF, HEIC, HEIF)", ErrUnsupportedDocument)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
