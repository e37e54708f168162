package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// canonicalIndent is the indentation of Record.Canonical.
const canonicalIndent = "    "

// Record is a JSON object recovered from a completion.
type Record struct {
	// Canonical is the object re-serialized with 4-space indentation, keys in
	// the order the model emitted them.
	Canonical string
	// Value is the decoded object. Numbers are json.Number.
	Value map[string]any
}

// Compact returns the canonical form on a single line.
func (r *Record) Compact() string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(r.Canonical)); err != nil {
		return r.Canonical
	}
	return buf.String()
}

// ResponseParser turns a raw completion into a Record.
type ResponseParser func(raw string) (*Record, error)

// ExtractJSON recovers the JSON object the model wrote after the prompt.
//
// It is a brace scan, not a tokenizer: the slice runs from the first '{' to
// the last '}' after the Delimiter, so braces in prose around the object end
// up inside the slice and fail to parse.
func ExtractJSON(raw string) (*Record, error) {
	idx := strings.Index(raw, Delimiter)
	if idx == -1 {
		return nil, ErrDelimiterNotFound
	}
	text := raw[idx+len(Delimiter):]

	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx == -1 || endIdx == -1 {
		return nil, ErrNoJSONObject
	}

	// A '}' that only appears before the first '{' leaves nothing to parse.
	var slice string
	if endIdx >= startIdx {
		slice = text[startIdx : endIdx+1]
		// Second trim of anything after the final brace. Always a no-op once
		// the slice ends on the last '}'.
		slice = slice[:strings.LastIndex(slice, "}")+1]
	}

	value, err := decodeObject(slice)
	if err != nil {
		return nil, &MalformedJSONError{Slice: slice, Err: err}
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(slice), "", canonicalIndent); err != nil {
		return nil, &MalformedJSONError{Slice: slice, Err: err}
	}

	return &Record{
		Canonical: buf.String(),
		Value:     value,
	}, nil
}

// decodeObject parses s as exactly one JSON object.
func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var value map[string]any
	if err := dec.Decode(&value); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	if _, err := dec.Token(); err != io.EOF {
		if err != nil {
			return nil, err
		}
		return nil, errors.New("extra data after JSON object")
	}
	return value, nil
}
