package generation

import (
	"errors"
	"testing"
)

const validQuestions = `[
  {"id": 1, "text": "How long will you live there?", "options": ["Under a year", "1-3 years", "Longer"]},
  {"id": 2, "text": "Do you work remotely?", "options": [" Yes ", "No", "Sometimes", "Hybrid"]}
]`

func TestParseQuestions_Valid(t *testing.T) {
	questions, err := parseQuestions(validQuestions)
	if err != nil {
		t.Fatalf("parseQuestions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("len = %d, want 2", len(questions))
	}
	if questions[0].ID != 1 || questions[0].Text != "How long will you live there?" {
		t.Errorf("first question = %+v", questions[0])
	}
	if got := questions[1].Options[0]; got != "Yes" {
		t.Errorf("option not trimmed: %q", got)
	}
}

func TestParseQuestions_CodeFence(t *testing.T) {
	raw := "Here you go:\n```json\n" + validQuestions + "\n```"
	questions, err := parseQuestions(raw)
	if err != nil {
		t.Fatalf("parseQuestions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("len = %d, want 2", len(questions))
	}
}

func TestParseQuestions_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Kind
	}{
		{"empty", "", KindEmptyResponse},
		{"whitespace", "  \n ", KindEmptyResponse},
		{"not json", "I cannot help with that.", KindParseError},
		{"truncated", `[{"id": 1, "text": "Q"`, KindParseError},
		{"object instead of array", `{"id": 1}`, KindSchemaMismatch},
		{"id is a string", `[{"id": "one", "text": "Q", "options": ["a","b","c"]}]`, KindSchemaMismatch},
		{"empty array", `[]`, KindSchemaMismatch},
		{"missing options", `[{"id": 1, "text": "Q"}]`, KindSchemaMismatch},
		{"zero id", `[{"id": 0, "text": "Q", "options": ["a","b","c"]}]`, KindSchemaMismatch},
		{"duplicate id", `[{"id": 1, "text": "Q", "options": ["a","b","c"]},{"id": 1, "text": "R", "options": ["a","b","c"]}]`, KindSchemaMismatch},
		{"blank text", `[{"id": 1, "text": "  ", "options": ["a","b","c"]}]`, KindSchemaMismatch},
		{"two options", `[{"id": 1, "text": "Q", "options": ["a","b"]}]`, KindSchemaMismatch},
		{"five options", `[{"id": 1, "text": "Q", "options": ["a","b","c","d","e"]}]`, KindSchemaMismatch},
		{"repeated option", `[{"id": 1, "text": "Q", "options": ["a","b"," a"]}]`, KindSchemaMismatch},
		{"blank option", `[{"id": 1, "text": "Q", "options": ["a","b",""]}]`, KindSchemaMismatch},
		{"array wrapped in object", `{"questions":[{"id":1,"text":"Q?","options":["a","b","c"]}]}`, KindSchemaMismatch},
		{"fenced wrapped array", "```json\n{\"questions\":[{\"id\":1,\"text\":\"Q?\",\"options\":[\"a\",\"b\",\"c\"]}]}\n```", KindSchemaMismatch},
		{"prose around wrapped array", `Sure: {"questions":[{"id":1,"text":"Q?","options":["a","b","c"]}]} Enjoy.`, KindSchemaMismatch},
		{"analysis object", `{"finalRecommendation":"Buy","summary":"s","reasoning":["a"],"pros":["b"],"cons":[],"nextSteps":["c"]}`, KindSchemaMismatch},
		{"null", `null`, KindSchemaMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseQuestions(tt.raw)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := KindOf(err); got != tt.want {
				t.Errorf("kind = %s, want %s (%v)", got, tt.want, err)
			}
		})
	}
}

func TestParseAnalysis_Valid(t *testing.T) {
	raw := `{
		"finalRecommendation": "Rent for now",
		"summary": "Flexibility matters most to you.",
		"reasoning": ["You may move within two years", " "],
		"pros": ["No maintenance"],
		"cons": ["No equity"],
		"nextSteps": ["Compare leases", "Review budget"]
	}`
	result, err := parseAnalysis(raw)
	if err != nil {
		t.Fatalf("parseAnalysis: %v", err)
	}
	if result.FinalRecommendation != "Rent for now" {
		t.Errorf("recommendation = %q", result.FinalRecommendation)
	}
	if len(result.Reasoning) != 1 {
		t.Errorf("blank reasoning entry kept: %v", result.Reasoning)
	}
	if len(result.NextSteps) != 2 {
		t.Errorf("next steps = %v", result.NextSteps)
	}
}

func TestParseAnalysis_EmptyListsAllowed(t *testing.T) {
	raw := `{"finalRecommendation":"Buy","summary":"s","reasoning":[],"pros":[],"cons":[],"nextSteps":[]}`
	result, err := parseAnalysis(raw)
	if err != nil {
		t.Fatalf("parseAnalysis: %v", err)
	}
	if result.Pros == nil || len(result.Pros) != 0 {
		t.Errorf("pros = %#v, want empty non-nil", result.Pros)
	}
}

func TestParseAnalysis_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Kind
	}{
		{"empty", "", KindEmptyResponse},
		{"prose", "Sorry, something went wrong", KindParseError},
		{"missing cons", `{"finalRecommendation":"Buy","summary":"s","reasoning":[],"pros":[],"nextSteps":[]}`, KindSchemaMismatch},
		{"pros is a string", `{"finalRecommendation":"Buy","summary":"s","reasoning":[],"pros":"many","cons":[],"nextSteps":[]}`, KindSchemaMismatch},
		{"blank recommendation", `{"finalRecommendation":" ","summary":"s","reasoning":[],"pros":[],"cons":[],"nextSteps":[]}`, KindSchemaMismatch},
		{"array payload", `[1,2,3]`, KindSchemaMismatch},
		{"questions array", validQuestions, KindSchemaMismatch},
		{"prose around array", `Here: [{"finalRecommendation":"Buy"}]`, KindSchemaMismatch},
		{"string payload", `"Buy"`, KindSchemaMismatch},
		{"truncated object", `{"finalRecommendation":"Buy"`, KindParseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseAnalysis(tt.raw)
			if got := KindOf(err); got != tt.want {
				t.Errorf("kind = %s, want %s (%v)", got, tt.want, err)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"[1]", "[1]"},
		{"```\n[1]\n```", "[1]"},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"noise [1,2] trailing", "[1,2]"},
		{`noise {"a":[1]} trailing`, `{"a":[1]}`},
		{`{"a":[1,2]}`, `{"a":[1,2]}`},
		{"```json\n{\"q\":[1]}\n```", `{"q":[1]}`},
		{"no json here", "no json here"},
	}
	for _, tt := range tests {
		if got := extractJSON(tt.in); got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestErrorSentinels(t *testing.T) {
	err := newError(KindSchemaMismatch, "request questions", "bad", errors.New("inner"))
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Error("errors.Is should match by kind")
	}
	if errors.Is(err, ErrParseError) {
		t.Error("errors.Is matched the wrong kind")
	}
	if got := err.Error(); got != "request questions: bad: inner" {
		t.Errorf("Error() = %q", got)
	}
}

func TestCredentialRejected(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"401", &BackendError{StatusCode: 401, Message: "unauthorized"}, true},
		{"403", &BackendError{StatusCode: 403, Message: "forbidden"}, true},
		{"not found phrase", &BackendError{StatusCode: 404, Message: "Requested entity was not found."}, true},
		{"bad key phrase", errors.New("API key not valid. Please pass a valid API key."), true},
		{"model not found", &BackendError{StatusCode: 404, Message: "models/foo is not found for API version v1beta"}, false},
		{"server error", &BackendError{StatusCode: 500, Message: "internal"}, false},
		{"network", errors.New("dial tcp: connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := credentialRejected(tt.err); got != tt.want {
				t.Errorf("credentialRejected = %v, want %v", got, tt.want)
			}
		})
	}
}
