package llm

import (
	"context"
	"fmt"
)

// LLM is the contract for a generation backend. The orchestrator treats it as
// opaque: it accepts a prompt and produces (or streams) text. HealthCheck lets
// the pipeline short-circuit quickly when the backend is unreachable instead
// of timing out mid-query.
type LLM interface {
	// Generate produces the complete answer for a prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream produces the answer incrementally. The returned channel
	// is closed when generation finishes or the context is cancelled;
	// cancelling the context stops token production at the backend.
	GenerateStream(ctx context.Context, prompt string) (<-chan string, error)

	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// NewClient creates an LLM backend for the given provider. The provider is
// chosen once at construction time; call sites never branch on it.
func NewClient(provider, model, apiKey, baseURL string) (LLM, error) {
	switch provider {
	case "ollama":
		return NewOllama(model, baseURL)
	case "openai":
		return NewOpenAI(apiKey, model)
	case "gemini":
		return NewGemini(context.Background(), model, apiKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}
