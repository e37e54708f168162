package extraction

import (
	"context"
	"errors"
)

// Result is the outcome of one extraction.
type Result struct {
	Prompt     string
	Completion string
	Record     *Record
}

// Extractor runs invoice text through the prompt, a Generator and a
// ResponseParser. It holds no per-request state.
type Extractor struct {
	generator Generator
	sampling  SamplingConfig
	parse     ResponseParser
}

// Option configures an Extractor
type Option func(*Extractor)

// WithParser replaces ExtractJSON as the completion parser
func WithParser(p ResponseParser) Option {
	return func(e *Extractor) {
		e.parse = p
	}
}

// NewExtractor creates an Extractor that uses g with the given sampling policy
func NewExtractor(g Generator, sampling SamplingConfig, opts ...Option) *Extractor {
	e := &Extractor{
		generator: g,
		sampling:  sampling,
		parse:     ExtractJSON,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract builds the prompt for invoiceText, generates a completion and
// parses it. When parsing fails the returned Result still carries the prompt
// and completion; Record is nil.
func (e *Extractor) Extract(ctx context.Context, invoiceText string) (*Result, error) {
	result := &Result{Prompt: BuildPrompt(invoiceText)}

	completion, err := e.generator.Generate(ctx, result.Prompt, e.sampling)
	if err != nil {
		var generation *GenerationError
		if !errors.As(err, &generation) {
			err = &GenerationError{Backend: "generator", Err: err}
		}
		return result, err
	}
	result.Completion = completion

	record, err := e.parse(completion)
	if err != nil {
		return result, err
	}
	result.Record = record

	return result, nil
}
