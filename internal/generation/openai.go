package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// wrapperField holds a top-level array when the schema must be an object.
const wrapperField = "items"

// OpenAIBackend calls any OpenAI-compatible chat completion endpoint with a
// strict json_schema response format.
type OpenAIBackend struct {
	model      string
	endpoint   string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*openai.Client
}

func NewOpenAIBackend(model, endpoint string, httpClient *http.Client) *OpenAIBackend {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIBackend{
		model:      model,
		endpoint:   endpoint,
		httpClient: httpClient,
		clients:    make(map[string]*openai.Client),
	}
}

func (b *OpenAIBackend) Name() string { return "openai" }

func (b *OpenAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	client := b.client(req.APIKey)

	schema := toJSONSchema(req.Schema)
	wrapped := req.Schema != nil && req.Schema.Type != TypeObject
	if wrapped {
		schema = toJSONSchema(&Schema{
			Type:       TypeObject,
			Properties: []Property{{Name: wrapperField, Schema: req.Schema}},
		})
	}

	name := "response"
	if req.Schema != nil && req.Schema.Name != "" {
		name = req.Schema.Name
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: schema,
				Strict: true,
			},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}

	content := resp.Choices[0].Message.Content
	if !wrapped || content == "" {
		return content, nil
	}
	return unwrapItems(content), nil
}

func (b *OpenAIBackend) client(apiKey string) *openai.Client {
	b.mu.Lock()
	defer b.mu.Unlock()

	if client, ok := b.clients[apiKey]; ok {
		return client
	}
	cfg := openai.DefaultConfig(apiKey)
	if b.endpoint != "" {
		cfg.BaseURL = b.endpoint
	}
	if b.httpClient != nil {
		cfg.HTTPClient = b.httpClient
	}
	client := openai.NewClientWithConfig(cfg)
	b.clients[apiKey] = client
	return client
}

// unwrapItems returns the wrapped array as raw text. Content that is not the
// expected wrapper is passed through so the parser can classify it.
func unwrapItems(content string) string {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(extractJSON(content)), &wrapper); err != nil {
		return content
	}
	items, ok := wrapper[wrapperField]
	if !ok {
		return content
	}
	return string(items)
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &BackendError{
			StatusCode: apiErr.HTTPStatusCode,
			Status:     apiErr.HTTPStatus,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &BackendError{
			StatusCode: reqErr.HTTPStatusCode,
			Status:     reqErr.HTTPStatus,
			Message:    fmt.Sprintf("request failed with status %d", reqErr.HTTPStatusCode),
			Err:        err,
		}
	}
	return err
}
