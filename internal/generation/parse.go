package generation

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"decide-ai/internal/models"
)

const (
	minOptions = 3
	maxOptions = 4
)

// Wire shapes use pointers so missing fields can be told apart from zero values.
type questionPayload struct {
	ID      *int      `json:"id"`
	Text    *string   `json:"text"`
	Options *[]string `json:"options"`
}

type analysisPayload struct {
	FinalRecommendation *string   `json:"finalRecommendation"`
	Summary             *string   `json:"summary"`
	Reasoning           *[]string `json:"reasoning"`
	Pros                *[]string `json:"pros"`
	Cons                *[]string `json:"cons"`
	NextSteps           *[]string `json:"nextSteps"`
}

// extractJSON removes markdown code fences if present. When prose surrounds
// the payload it is trimmed to the outermost object or array; content that
// already starts with a JSON value is returned as is.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		start := 3
		if newlineIdx := strings.Index(content[start:], "\n"); newlineIdx != -1 {
			start += newlineIdx + 1
		}
		if endIdx := strings.Index(content[start:], "```"); endIdx != -1 {
			content = content[start : start+endIdx]
		} else {
			content = content[start:]
		}
	}

	content = strings.TrimSpace(content)
	if content == "" || content[0] == '{' || content[0] == '[' {
		return content
	}

	startIdx := strings.IndexAny(content, "{[")
	if startIdx == -1 {
		return content
	}
	closeDelim := byte('}')
	if content[startIdx] == '[' {
		closeDelim = ']'
	}
	if endIdx := strings.LastIndexByte(content, closeDelim); endIdx > startIdx {
		content = content[startIdx : endIdx+1]
	}
	return strings.TrimSpace(content)
}

// decodePayload decodes the extracted JSON into v after checking that its
// top-level value opens with want.
func decodePayload(raw, what string, want byte, v any) error {
	var value json.RawMessage
	if err := json.Unmarshal([]byte(extractJSON(raw)), &value); err != nil {
		return newError(KindParseError, "", what+" payload is not valid json", err)
	}
	value = bytes.TrimSpace(value)
	if len(value) == 0 || value[0] != want {
		return schemaMismatch("%s payload is a json %s, want %s", what, jsonKind(value), jsonKind([]byte{want}))
	}
	if err := json.Unmarshal(value, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return newError(KindSchemaMismatch, "", "unexpected json shape for "+what, err)
		}
		return newError(KindParseError, "", what+" payload is not valid json", err)
	}
	return nil
}

func jsonKind(value []byte) string {
	if len(value) == 0 {
		return "nothing"
	}
	switch value[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

func parseQuestions(raw string) ([]models.Question, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, newError(KindEmptyResponse, "", "backend returned no text", nil)
	}

	var payload []questionPayload
	if err := decodePayload(raw, "questions", '[', &payload); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, schemaMismatch("no questions returned")
	}

	questions := make([]models.Question, 0, len(payload))
	seen := make(map[int]bool, len(payload))
	for i, item := range payload {
		if item.ID == nil || item.Text == nil || item.Options == nil {
			return nil, schemaMismatch("question %d is missing id, text or options", i+1)
		}
		if *item.ID <= 0 {
			return nil, schemaMismatch("question %d has non-positive id %d", i+1, *item.ID)
		}
		if seen[*item.ID] {
			return nil, schemaMismatch("duplicate question id %d", *item.ID)
		}
		seen[*item.ID] = true

		text := strings.TrimSpace(*item.Text)
		if text == "" {
			return nil, schemaMismatch("question %d has empty text", *item.ID)
		}

		options, err := cleanOptions(*item.ID, *item.Options)
		if err != nil {
			return nil, err
		}

		questions = append(questions, models.Question{ID: *item.ID, Text: text, Options: options})
	}
	return questions, nil
}

func cleanOptions(id int, raw []string) ([]string, error) {
	if len(raw) < minOptions || len(raw) > maxOptions {
		return nil, schemaMismatch("question %d has %d options, want %d-%d", id, len(raw), minOptions, maxOptions)
	}
	options := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, option := range raw {
		option = strings.TrimSpace(option)
		if option == "" {
			return nil, schemaMismatch("question %d has an empty option", id)
		}
		if seen[option] {
			return nil, schemaMismatch("question %d repeats option %q", id, option)
		}
		seen[option] = true
		options = append(options, option)
	}
	return options, nil
}

func parseAnalysis(raw string) (*models.AnalysisResult, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, newError(KindEmptyResponse, "", "backend returned no text", nil)
	}

	var payload analysisPayload
	if err := decodePayload(raw, "analysis", '{', &payload); err != nil {
		return nil, err
	}

	if payload.FinalRecommendation == nil || payload.Summary == nil ||
		payload.Reasoning == nil || payload.Pros == nil || payload.Cons == nil || payload.NextSteps == nil {
		return nil, schemaMismatch("analysis is missing one of finalRecommendation, summary, reasoning, pros, cons, nextSteps")
	}

	result := &models.AnalysisResult{
		FinalRecommendation: strings.TrimSpace(*payload.FinalRecommendation),
		Summary:             strings.TrimSpace(*payload.Summary),
		Reasoning:           compact(*payload.Reasoning),
		Pros:                compact(*payload.Pros),
		Cons:                compact(*payload.Cons),
		NextSteps:           compact(*payload.NextSteps),
	}
	if result.FinalRecommendation == "" {
		return nil, schemaMismatch("analysis has an empty finalRecommendation")
	}
	if result.Summary == "" {
		return nil, schemaMismatch("analysis has an empty summary")
	}
	return result, nil
}

// compact trims entries and drops blank ones.
func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
