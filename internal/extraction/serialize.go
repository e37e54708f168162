package extraction

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
)

// Serialized limits how many Generate and Transcribe calls reach the wrapped
// Generator at once. Callers waiting for a slot give up when their context
// ends.
type Serialized struct {
	next  Generator
	slots *semaphore.Weighted
}

// Serialize wraps g so that at most slots calls run concurrently. A value
// below 1 means one slot.
func Serialize(g Generator, slots int) *Serialized {
	if slots < 1 {
		slots = 1
	}
	return &Serialized{
		next:  g,
		slots: semaphore.NewWeighted(int64(slots)),
	}
}

// Generate waits for a free slot and delegates to the wrapped Generator
func (s *Serialized) Generate(ctx context.Context, prompt string, cfg SamplingConfig) (string, error) {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.slots.Release(1)

	return s.next.Generate(ctx, prompt, cfg)
}

// Transcribe waits for a free slot and delegates to the wrapped Generator
// when it can read images
func (s *Serialized) Transcribe(ctx context.Context, pngData []byte) (string, error) {
	t, ok := s.next.(interface {
		Transcribe(ctx context.Context, pngData []byte) (string, error)
	})
	if !ok {
		return "", &GenerationError{Backend: "generator", Err: errors.New("backend cannot transcribe images")}
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.slots.Release(1)

	return t.Transcribe(ctx, pngData)
}

// Close closes the wrapped Generator
func (s *Serialized) Close() error {
	return s.next.Close()
}
