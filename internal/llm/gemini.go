package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gemini is an LLM backend using the Google GenAI API.
type Gemini struct {
	model *genai.GenerativeModel
}

// NewGemini creates a new Gemini client for the given model name.
func NewGemini(ctx context.Context, modelName, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Gemini{model: client.GenerativeModel(modelName)}, nil
}

// Generate produces the complete answer for a prompt.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content with gemini: %w", err)
	}
	return flattenResponse(resp), nil
}

// GenerateStream produces the answer incrementally over a channel.
func (g *Gemini) GenerateStream(ctx context.Context, prompt string) (<-chan string, error) {
	iter := g.model.GenerateContentStream(ctx, genai.Text(prompt))

	deltaChan := make(chan string)
	go func() {
		defer close(deltaChan)

		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				return
			}
			select {
			case deltaChan <- flattenResponse(resp):
			case <-ctx.Done():
				return
			}
		}
	}()

	return deltaChan, nil
}

// HealthCheck reports whether the GenAI API is reachable.
func (g *Gemini) HealthCheck(ctx context.Context) error {
	if _, err := g.model.CountTokens(ctx, genai.Text("ping")); err != nil {
		return fmt.Errorf("gemini is unreachable: %w", err)
	}
	return nil
}

// flattenResponse concatenates all text parts of a generation response.
func flattenResponse(resp *genai.GenerateContentResponse) string {
	var out string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out += string(text)
			}
		}
	}
	return out
}

var _ LLM = (*Gemini)(nil)
