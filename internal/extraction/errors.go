package extraction

import (
	"errors"
	"fmt"
)

// Error kinds reported to callers. The names are part of the transport
// contract.
const (
	KindDelimiterNotFound = "DelimiterNotFound"
	KindNoJSONObject      = "NoJsonObjectFound"
	KindMalformedJSON     = "MalformedJson"
	KindUpstream          = "UpstreamGenerationFailure"
)

var (
	// ErrDelimiterNotFound means the completion never reached the end of the prompt.
	ErrDelimiterNotFound = errors.New("closing delimiter not found in completion")

	// ErrNoJSONObject means there is no '{' or no '}' after the delimiter.
	ErrNoJSONObject = errors.New("no JSON object found in completion")
)

// MalformedJSONError is returned when the brace-bounded slice does not parse.
type MalformedJSONError struct {
	Slice string
	Err   error
}

func (e *MalformedJSONError) Error() string {
	return fmt.Sprintf("malformed JSON in completion: %v", e.Err)
}

func (e *MalformedJSONError) Unwrap() error {
	return e.Err
}

// GenerationError wraps any failure of a Generator.
type GenerationError struct {
	Backend string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// KindOf returns the error kind name for err, or "" when err is not one of
// the extraction failures.
func KindOf(err error) string {
	var malformed *MalformedJSONError
	var generation *GenerationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &generation):
		return KindUpstream
	case errors.Is(err, ErrDelimiterNotFound):
		return KindDelimiterNotFound
	case errors.Is(err, ErrNoJSONObject):
		return KindNoJSONObject
	case errors.As(err, &malformed):
		return KindMalformedJSON
	default:
		return ""
	}
}
