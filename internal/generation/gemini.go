package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"google.golang.org/genai"
)

// GeminiBackend calls the Gemini API with a JSON response schema.
type GeminiBackend struct {
	model      string
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiBackend creates a backend for model. baseURL and httpClient are
// optional and mainly useful for tests and proxies.
func NewGeminiBackend(model, baseURL string, httpClient *http.Client) *GeminiBackend {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiBackend{
		model:      model,
		baseURL:    baseURL,
		httpClient: httpClient,
		clients:    make(map[string]*genai.Client),
	}
}

func (b *GeminiBackend) Name() string { return "gemini" }

func (b *GeminiBackend) Generate(ctx context.Context, req Request) (string, error) {
	client, err := b.client(ctx, req.APIKey)
	if err != nil {
		return "", err
	}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenai(req.Schema),
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	resp, err := client.Models.GenerateContent(ctx, b.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", wrapGeminiError(err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text(), nil
}

// client returns a cached client for apiKey; a newly selected key gets its own.
func (b *GeminiBackend) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if client, ok := b.clients[apiKey]; ok {
		return client, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: b.httpClient,
	}
	if b.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: b.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	b.clients[apiKey] = client
	return client, nil
}

func wrapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &BackendError{
			StatusCode: apiErr.Code,
			Status:     apiErr.Status,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &BackendError{
			StatusCode: apiErrPtr.Code,
			Status:     apiErrPtr.Status,
			Message:    apiErrPtr.Message,
			Err:        err,
		}
	}
	return err
}
