package invoice

import (
	"encoding/json"
	"time"

	"github.com/zombor/invoice-formatter/internal/extraction"
)

// Source values of an Extraction
const (
	SourceText   = "text"
	SourceUpload = "upload"
)

// Extraction is the journal entry of one formatting request
type Extraction struct {
	ID            string          `json:"id"`
	Source        string          `json:"source"`
	Filename      string          `json:"filename,omitempty"`
	ContentType   string          `json:"content_type,omitempty"`
	InputText     string          `json:"input_text"`
	Completion    string          `json:"completion,omitempty"`
	Record        json.RawMessage `json:"record,omitempty"`
	ErrorKind     string          `json:"error_kind,omitempty"`
	Error         string          `json:"error,omitempty"`
	ShapeWarnings []string        `json:"shape_warnings,omitempty"`
	DurationMS    int64           `json:"duration_ms"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Formatted is a successfully extracted invoice record
type Formatted struct {
	ID       string
	Record   *extraction.Record
	Warnings []string
}
