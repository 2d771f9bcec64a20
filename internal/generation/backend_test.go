package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"decide-ai/internal/credential"
)

func geminiServer(t *testing.T, status int, body string, seen *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			data, _ := io.ReadAll(r.Body)
			*seen = r.URL.Path + "\n" + string(data)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func geminiText(t *testing.T, text string) string {
	t.Helper()
	payload := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestGeminiBackend_Generate(t *testing.T) {
	var seen string
	srv := geminiServer(t, http.StatusOK, geminiText(t, validQuestions), &seen)
	backend := NewGeminiBackend("gemini-test", srv.URL+"/", srv.Client())

	raw, err := backend.Generate(context.Background(), Request{
		APIKey: "key",
		System: "system",
		Prompt: "prompt",
		Schema: QuestionsSchema,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := parseQuestions(raw); err != nil {
		t.Fatalf("generated text does not parse: %v", err)
	}
	if !strings.Contains(seen, "gemini-test:generateContent") {
		t.Errorf("unexpected request path: %s", strings.SplitN(seen, "\n", 2)[0])
	}
	for _, want := range []string{"application/json", "propertyOrdering", "responseSchema"} {
		if !strings.Contains(seen, want) {
			t.Errorf("request body missing %q", want)
		}
	}
}

func TestGeminiBackend_NotFoundIsCredentialFailure(t *testing.T) {
	srv := geminiServer(t, http.StatusNotFound,
		`{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND"}}`, nil)
	backend := NewGeminiBackend("gemini-test", srv.URL+"/", srv.Client())

	store := credential.NewStore("stale")
	client := NewClient(backend, credential.NewGate(store, credential.NewPendingSelector(store)), Options{})

	_, err := client.RequestQuestions(context.Background(), "topic")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("err = %v, want invalid credential", err)
	}
	var be *BackendError
	if !errors.As(err, &be) || be.StatusCode != http.StatusNotFound || be.Status != "NOT_FOUND" {
		t.Errorf("backend error not preserved: %v", err)
	}
}

func TestGeminiBackend_ServerErrorIsUnclassified(t *testing.T) {
	srv := geminiServer(t, http.StatusBadRequest,
		`{"error":{"code":400,"message":"Topic too long for this model.","status":"INVALID_ARGUMENT"}}`, nil)
	backend := NewGeminiBackend("gemini-test", srv.URL+"/", srv.Client())
	client := NewClient(backend, credential.NewGate(credential.NewStore("key"), nil), Options{})

	_, err := client.RequestQuestions(context.Background(), "topic")
	if KindOf(err) != KindUnclassified {
		t.Fatalf("kind = %s, want unclassified", KindOf(err))
	}
	if got := BackendMessage(err); got != "Topic too long for this model." {
		t.Errorf("BackendMessage = %q", got)
	}
}

func TestGeminiBackend_ClientCachedPerKey(t *testing.T) {
	srv := geminiServer(t, http.StatusOK, geminiText(t, "{}"), nil)
	backend := NewGeminiBackend("", srv.URL+"/", srv.Client())

	ctx := context.Background()
	a, err := backend.client(ctx, "one")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	b, _ := backend.client(ctx, "one")
	c, _ := backend.client(ctx, "two")
	if a != b {
		t.Error("same key should reuse the client")
	}
	if a == c {
		t.Error("a new key should get a new client")
	}
}

func openAIServer(t *testing.T, status int, body string, seen *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			data, _ := io.ReadAll(r.Body)
			*seen = string(data)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openAIContent(t *testing.T, content string) string {
	t.Helper()
	payload := map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-test",
		"choices": []any{
			map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestOpenAIBackend_WrapsArraySchema(t *testing.T) {
	var seen string
	srv := openAIServer(t, http.StatusOK, openAIContent(t, `{"items":`+validQuestions+`}`), &seen)
	backend := NewOpenAIBackend("gpt-test", srv.URL, srv.Client())

	raw, err := backend.Generate(context.Background(), Request{APIKey: "key", System: "s", Prompt: "p", Schema: QuestionsSchema})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	questions, err := parseQuestions(raw)
	if err != nil {
		t.Fatalf("unwrapped text does not parse: %v", err)
	}
	if len(questions) != 2 {
		t.Errorf("len = %d, want 2", len(questions))
	}

	var body struct {
		ResponseFormat struct {
			Type       string `json:"type"`
			JSONSchema struct {
				Name   string          `json:"name"`
				Strict bool            `json:"strict"`
				Schema json.RawMessage `json:"schema"`
			} `json:"json_schema"`
		} `json:"response_format"`
	}
	if err := json.Unmarshal([]byte(seen), &body); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if body.ResponseFormat.Type != "json_schema" || !body.ResponseFormat.JSONSchema.Strict {
		t.Errorf("response_format = %+v", body.ResponseFormat)
	}
	if body.ResponseFormat.JSONSchema.Name != "decision_questions" {
		t.Errorf("schema name = %q", body.ResponseFormat.JSONSchema.Name)
	}
	if !strings.Contains(string(body.ResponseFormat.JSONSchema.Schema), `"items"`) {
		t.Error("array schema should be wrapped in an items object")
	}
	assertKeyOrder(t, string(body.ResponseFormat.JSONSchema.Schema), []string{`"id"`, `"text"`, `"options"`})
}

func TestOpenAIBackend_ObjectSchemaNotWrapped(t *testing.T) {
	analysis := `{"finalRecommendation":"Buy","summary":"s","reasoning":[],"pros":[],"cons":[],"nextSteps":[]}`
	srv := openAIServer(t, http.StatusOK, openAIContent(t, analysis), nil)
	backend := NewOpenAIBackend("gpt-test", srv.URL, srv.Client())

	raw, err := backend.Generate(context.Background(), Request{APIKey: "key", Prompt: "p", Schema: AnalysisSchema})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if raw != analysis {
		t.Errorf("raw = %q", raw)
	}
}

func TestOpenAIBackend_UnauthorizedIsCredentialFailure(t *testing.T) {
	srv := openAIServer(t, http.StatusUnauthorized,
		`{"error":{"message":"Incorrect API key provided: sk-bad.","type":"invalid_request_error","code":"invalid_api_key"}}`, nil)
	backend := NewOpenAIBackend("gpt-test", srv.URL, srv.Client())
	gate := credential.NewGate(credential.NewStore("sk-bad"), nil)
	client := NewClient(backend, gate, Options{})

	_, err := client.RequestAnalysis(context.Background(), "t", nil, nil)
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("err = %v, want invalid credential", err)
	}
	if gate.State() != credential.StateMissing {
		t.Errorf("gate state = %s", gate.State())
	}
}

func TestUnwrapItems(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"items":[1,2]}`, `[1,2]`},
		{"```json\n{\"items\":[]}\n```", `[]`},
		{`{"other":[1]}`, `{"other":[1]}`},
		{`not json`, `not json`},
	}
	for _, tt := range tests {
		if got := unwrapItems(tt.in); got != tt.want {
			t.Errorf("unwrapItems(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSchemaConversionKeepsOrder(t *testing.T) {
	g := toGenai(QuestionsSchema)
	if g.Items == nil {
		t.Fatal("array schema lost its items")
	}
	want := []string{"id", "text", "options"}
	if strings.Join(g.Items.PropertyOrdering, ",") != strings.Join(want, ",") {
		t.Errorf("PropertyOrdering = %v, want %v", g.Items.PropertyOrdering, want)
	}
	if strings.Join(g.Items.Required, ",") != strings.Join(want, ",") {
		t.Errorf("Required = %v, want %v", g.Items.Required, want)
	}
}

func TestJSONSchemaKeepsPropertyOrder(t *testing.T) {
	tests := []struct {
		name   string
		schema *Schema
		keys   []string
	}{
		{"questions", QuestionsSchema, []string{`"id"`, `"text"`, `"options"`}},
		{"analysis", AnalysisSchema, []string{
			`"finalRecommendation"`, `"summary"`, `"reasoning"`, `"pros"`, `"cons"`, `"nextSteps"`,
		}},
		{"reversed", &Schema{Type: TypeObject, Properties: []Property{
			{Name: "zeta", Schema: &Schema{Type: TypeString}},
			{Name: "alpha", Schema: &Schema{Type: TypeString}},
		}}, []string{`"zeta"`, `"alpha"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(toJSONSchema(tt.schema))
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if !json.Valid(data) {
				t.Fatalf("invalid json: %s", data)
			}
			assertKeyOrder(t, string(data), tt.keys)
		})
	}
}

func TestJSONSchemaStrictFields(t *testing.T) {
	data, err := json.Marshal(toJSONSchema(QuestionsSchema))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Type  string `json:"type"`
		Items struct {
			Type                 string          `json:"type"`
			Required             []string        `json:"required"`
			AdditionalProperties *bool           `json:"additionalProperties"`
			Properties           json.RawMessage `json:"properties"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != "array" || decoded.Items.Type != "object" {
		t.Errorf("types = %q / %q", decoded.Type, decoded.Items.Type)
	}
	if strings.Join(decoded.Items.Required, ",") != "id,text,options" {
		t.Errorf("required = %v", decoded.Items.Required)
	}
	if decoded.Items.AdditionalProperties == nil || *decoded.Items.AdditionalProperties {
		t.Error("additionalProperties should be false")
	}
}

// assertKeyOrder checks that each key first appears after the previous one.
func assertKeyOrder(t *testing.T, data string, keys []string) {
	t.Helper()
	last := -1
	for _, key := range keys {
		idx := strings.Index(data, key)
		if idx == -1 {
			t.Fatalf("%s missing from %s", key, data)
		}
		if idx < last {
			t.Errorf("%s out of order in %s", key, data)
		}
		last = idx
	}
}
