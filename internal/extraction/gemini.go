package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// transcribePrompt asks a vision model for the raw text of a document image.
const transcribePrompt = `Transcribe all text in this invoice image exactly as it appears, line by line.
Do not summarize, translate, or add commentary.
Do not use markdown code blocks.`

// Gemini implements the Generator interface using Google Gemini
type Gemini struct {
	client    *genai.Client
	modelName string
}

// NewGemini creates a new Gemini Generator instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:    client,
		modelName: modelName,
	}, nil
}

// Generate sends the prompt to Gemini and returns it with the continuation
// appended. Gemini only returns the continuation, so the echo keeps the
// Delimiter in front of the model output.
func (g *Gemini) Generate(ctx context.Context, prompt string, cfg SamplingConfig) (string, error) {
	// A model per call keeps concurrent calls from sharing generation config.
	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(float32(cfg.effectiveTemperature()))
	model.SetTopP(float32(cfg.TopP))
	if cfg.TopK > 0 {
		model.SetTopK(int32(cfg.TopK))
	}
	model.SetMaxOutputTokens(int32(cfg.MaxNewTokens))

	text, err := g.generate(ctx, model, genai.Text(prompt))
	if err != nil {
		return "", &GenerationError{Backend: "gemini", Err: err}
	}
	return prompt + text, nil
}

// Transcribe returns the text Gemini reads from a PNG image
func (g *Gemini) Transcribe(ctx context.Context, pngData []byte) (string, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(0)

	// genai.ImageData expects just the format suffix, not the full MIME type
	text, err := g.generate(ctx, model, genai.ImageData("png", pngData), genai.Text(transcribePrompt))
	if err != nil {
		return "", &GenerationError{Backend: "gemini", Err: fmt.Errorf("transcribing image: %w", err)}
	}
	return strings.TrimSpace(text), nil
}

func (g *Gemini) generate(ctx context.Context, model *genai.GenerativeModel, parts ...genai.Part) (string, error) {
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}
	return responseText.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
