package models

import (
	"context"
	"fmt"
)

// NewProvider returns a concrete Model for a provider name. Ollama is the
// on-device default; the remote providers exist for development hosts.
func NewProvider(ctx context.Context, provider, model string) (Model, error) {
	switch provider {
	case "ollama", "":
		return NewOllamaModel(model)
	case "openai":
		return NewOpenAIModel(model), nil
	case "gemini", "google":
		return NewGeminiModel(ctx, model)
	case "anthropic", "claude":
		return NewAnthropicModel(model), nil
	case "scripted":
		return NewScriptedModel(), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
