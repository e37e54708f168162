package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-formatter/internal/document"
	"github.com/zombor/invoice-formatter/internal/extraction"
)

// Kinds for failures that happen before extraction
const (
	KindBadRequest          = "BadRequest"
	KindUnsupportedDocument = "UnsupportedDocument"
	KindEmptyDocument       = "EmptyDocument"
	KindInternal            = "InternalError"
)

// ErrBadRequest marks malformed requests
var ErrBadRequest = errors.New("bad request")

// ErrorKind names the failure behind err for responses and the journal
func ErrorKind(err error) string {
	if kind := extraction.KindOf(err); kind != "" {
		return kind
	}
	switch {
	case errors.Is(err, ErrBadRequest):
		return KindBadRequest
	case errors.Is(err, document.ErrUnsupportedDocument):
		return KindUnsupportedDocument
	case errors.Is(err, document.ErrEmptyDocument):
		return KindEmptyDocument
	default:
		return KindInternal
	}
}

// TextExtractor turns invoice text into a record
type TextExtractor interface {
	Extract(ctx context.Context, invoiceText string) (*extraction.Result, error)
}

// DocumentReader turns an uploaded document into invoice text
type DocumentReader interface {
	Text(ctx context.Context, data []byte, contentType string) (string, error)
}

// ShapeChecker compares a record with the invoice template
type ShapeChecker interface {
	Check(record *extraction.Record) []string
}

// IDGenerator generates unique IDs for extractions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles invoice formatting requests
type Service struct {
	extractor   TextExtractor
	reader      DocumentReader
	shapes      ShapeChecker
	journal     Journal
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUID request ids and the wall clock
func NewService(extractor TextExtractor, reader DocumentReader, shapes ShapeChecker, journal Journal) *Service {
	return NewServiceWithDeps(extractor, reader, shapes, journal, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(extractor TextExtractor, reader DocumentReader, shapes ShapeChecker, journal Journal, idGen IDGenerator, timeSrc TimeSource) *Service {
	if journal == nil {
		journal = NopJournal{}
	}
	return &Service{
		extractor:   extractor,
		reader:      reader,
		shapes:      shapes,
		journal:     journal,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)

	base = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`).ReplaceAllString(base, "")
	base = regexp.MustCompile(`\s+`).ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "invoice"
	}

	return base + ext
}

// FormatText extracts an invoice record from raw invoice text
func (s *Service) FormatText(ctx context.Context, text string) (*Formatted, error) {
	entry := s.newEntry(SourceText)
	entry.InputText = text
	return s.format(ctx, entry)
}

// FormatDocument reads the text of an uploaded document and extracts an
// invoice record from it
func (s *Service) FormatDocument(ctx context.Context, filename string, data []byte, contentType string) (*Formatted, error) {
	entry := s.newEntry(SourceUpload)
	entry.Filename = sanitizeFilename(filename)
	entry.ContentType = contentType

	text, err := s.reader.Text(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to read document",
			"id", entry.ID,
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.fail(entry, err)
		return nil, fmt.Errorf("reading document: %w", err)
	}
	entry.InputText = text

	return s.format(ctx, entry)
}

func (s *Service) newEntry(source string) *Extraction {
	return &Extraction{
		ID:        s.idGenerator.Generate(),
		Source:    source,
		CreatedAt: s.timeSource.Now(),
	}
}

func (s *Service) format(ctx context.Context, entry *Extraction) (*Formatted, error) {
	result, err := s.extractor.Extract(ctx, entry.InputText)
	if result != nil {
		entry.Completion = result.Completion
	}
	if err != nil {
		slog.Error("Extraction failed",
			"id", entry.ID,
			"source", entry.Source,
			"kind", ErrorKind(err),
			"error", err,
		)
		s.fail(entry, err)
		return nil, fmt.Errorf("extracting invoice %s: %w", entry.ID, err)
	}

	var warnings []string
	if s.shapes != nil {
		warnings = s.shapes.Check(result.Record)
	}
	if len(warnings) > 0 {
		slog.Warn("Record does not match the invoice template", "id", entry.ID, "warnings", warnings)
	}

	entry.Record = json.RawMessage(result.Record.Canonical)
	entry.ShapeWarnings = warnings
	entry.DurationMS = s.elapsed(entry)
	s.save(entry)

	slog.Info("Invoice formatted",
		"id", entry.ID,
		"source", entry.Source,
		"duration_ms", entry.DurationMS,
		"shape_warnings", len(warnings),
	)

	return &Formatted{
		ID:       entry.ID,
		Record:   result.Record,
		Warnings: warnings,
	}, nil
}

func (s *Service) fail(entry *Extraction, err error) {
	entry.ErrorKind = ErrorKind(err)
	entry.Error = err.Error()
	entry.DurationMS = s.elapsed(entry)
	s.save(entry)
}

func (s *Service) elapsed(entry *Extraction) int64 {
	return s.timeSource.Now().Sub(entry.CreatedAt).Milliseconds()
}

// save journals an entry. A journal failure never fails the request.
func (s *Service) save(entry *Extraction) {
	if err := s.journal.Save(entry); err != nil {
		slog.Error("Failed to journal extraction", "id", entry.ID, "error", err)
	}
}

// GetExtraction retrieves a journaled extraction by ID
func (s *Service) GetExtraction(id string) (*Extraction, error) {
	entry, err := s.journal.Get(id)
	if err != nil {
		return nil, fmt.Errorf("getting extraction: %w", err)
	}
	return entry, nil
}

// ListExtractions returns all journaled extractions
func (s *Service) ListExtractions() ([]*Extraction, error) {
	entries, err := s.journal.List()
	if err != nil {
		return nil, fmt.Errorf("listing extractions: %w", err)
	}
	return entries, nil
}
