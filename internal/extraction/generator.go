package extraction

import (
	"context"
	"fmt"
)

// SamplingConfig controls how a Generator samples its continuation.
type SamplingConfig struct {
	Temperature  float64 `json:"temperature"`
	DoSample     bool    `json:"do_sample"`
	TopP         float64 `json:"top_p"`
	TopK         int     `json:"top_k"`
	MaxNewTokens int     `json:"max_new_tokens"`
}

// DefaultSampling returns the sampling policy invoices are extracted with.
func DefaultSampling() SamplingConfig {
	return SamplingConfig{
		Temperature:  0.7,
		DoSample:     true,
		TopP:         0.95,
		TopK:         40,
		MaxNewTokens: 2048,
	}
}

// Validate checks that every option is in range.
func (c SamplingConfig) Validate() error {
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %v", c.Temperature)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("top_p must be between 0 and 1, got %v", c.TopP)
	}
	if c.TopK < 0 {
		return fmt.Errorf("top_k must not be negative, got %d", c.TopK)
	}
	if c.MaxNewTokens <= 0 {
		return fmt.Errorf("max_new_tokens must be positive, got %d", c.MaxNewTokens)
	}
	return nil
}

// effectiveTemperature is the temperature a backend should send. Greedy
// decoding is temperature 0.
func (c SamplingConfig) effectiveTemperature() float64 {
	if !c.DoSample {
		return 0
	}
	return c.Temperature
}

// Generator defines the interface for text generation backends
type Generator interface {
	// Generate returns the prompt followed by the model's continuation
	Generate(ctx context.Context, prompt string, cfg SamplingConfig) (string, error)
	// Close releases the backend
	Close() error
}
