package generation

import (
	"net/http"

	"decide-ai/internal/config"
)

// NewBackend returns the backend selected by cfg.Backend.
func NewBackend(cfg config.Config, httpClient *http.Client) Backend {
	if cfg.Backend == config.BackendOpenAI {
		return NewOpenAIBackend(cfg.OpenAIModel, cfg.OpenAIEndpoint, httpClient)
	}
	return NewGeminiBackend(cfg.GeminiModel, cfg.GeminiBaseURL, httpClient)
}
