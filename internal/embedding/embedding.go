package embedding

import (
	"fmt"
)

// NewModel creates an Embedding backend for the given provider. The provider
// is chosen once at construction time; call sites never branch on it.
func NewModel(provider, model, apiKey, baseURL string) (Embedding, error) {
	switch provider {
	case "ollama":
		return NewOllamaModel(model, baseURL)
	case "openai":
		return NewOpenAIModel(apiKey, model)
	case "gemini":
		return NewGoogleModel(apiKey, model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}
