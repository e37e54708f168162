package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/zombor/invoice-formatter/internal/document"
	"github.com/zombor/invoice-formatter/internal/extraction"
)

const (
	headerID            = "X-Invoice-Id"
	headerShapeWarnings = "X-Invoice-Shape-Warnings"
)

// errorResponse is the body of every failed request
type errorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

func newErrorResponse(err error) errorResponse {
	resp := errorResponse{
		Error: err.Error(),
		Kind:  ErrorKind(err),
	}
	var malformed *extraction.MalformedJSONError
	if errors.As(err, &malformed) {
		resp.Detail = malformed.Err.Error()
	}
	return resp
}

// statusFor maps a failure to its HTTP status
func statusFor(err error) int {
	switch ErrorKind(err) {
	case KindBadRequest, KindUnsupportedDocument, KindEmptyDocument:
		return http.StatusBadRequest
	case extraction.KindDelimiterNotFound, extraction.KindNoJSONObject, extraction.KindMalformedJSON:
		return http.StatusBadGateway
	case extraction.KindUpstream:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), newErrorResponse(err))
}

// writeRecord writes the canonical record as the response body
func writeRecord(w http.ResponseWriter, formatted *Formatted) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(headerID, formatted.ID)
	w.Header().Set(headerShapeWarnings, strconv.Itoa(len(formatted.Warnings)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, formatted.Record.Canonical); err != nil {
		slog.Error("Error writing response", "id", formatted.ID, "error", err)
	}
}

// handleFormatInvoice formats the invoice text in a JSON body
func (s *Server) handleFormatInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text *string `json:"text"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body: %v", ErrBadRequest, err))
		return
	}
	if req.Text == nil {
		writeError(w, fmt.Errorf("%w: text is required", ErrBadRequest))
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	formatted, err := s.service.FormatText(ctx, *req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeRecord(w, formatted)
}

// handleExtractText formats an uploaded invoice document
func (s *Server) handleExtractText(w http.ResponseWriter, r *http.Request) {
	maxSize := s.config.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, fmt.Errorf("%w: file is too large, maximum size is %d MB", ErrBadRequest, maxSize>>20))
			return
		}
		writeError(w, fmt.Errorf("%w: error parsing form: %v", ErrBadRequest, err))
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeError(w, fmt.Errorf("%w: no file provided", ErrBadRequest))
			return
		}
		writeError(w, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, fmt.Errorf("reading upload: %w", err))
		return
	}

	contentType := document.ContentType(header.Header.Get("Content-Type"), header.Filename)

	ctx, cancel := s.requestContext(r)
	defer cancel()

	formatted, err := s.service.FormatDocument(ctx, header.Filename, data, contentType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeRecord(w, formatted)
}

// handleGetExtraction returns a single journaled extraction
func (s *Server) handleGetExtraction(w http.ResponseWriter, r *http.Request) {
	entry, err := s.service.GetExtraction(r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "extraction not found", Kind: "NotFound"})
		return
	}
	if err != nil {
		slog.Error("Error getting extraction", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// handleListExtractions returns every journaled extraction
func (s *Server) handleListExtractions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.ListExtractions()
	if err != nil {
		slog.Error("Error listing extractions", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
