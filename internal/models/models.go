package models

// Stage is a step of the guided decision flow.
type Stage string

const (
	StageStart               Stage = "START"
	StageGeneratingQuestions Stage = "GENERATING_QUESTIONS"
	StageAnswering           Stage = "ANSWERING"
	StageAnalyzing           Stage = "ANALYZING"
	StageResult              Stage = "RESULT"
)

// Loading reports whether a backend call is in flight for the stage.
func (s Stage) Loading() bool {
	return s == StageGeneratingQuestions || s == StageAnalyzing
}

// Question is a single multiple-choice question produced by the generation backend.
type Question struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// Clone returns a deep copy so callers cannot mutate the received question.
func (q Question) Clone() Question {
	out := q
	out.Options = append([]string(nil), q.Options...)
	return out
}

// HasOption reports whether option is one of the question's choices.
func (q Question) HasOption(option string) bool {
	for _, candidate := range q.Options {
		if candidate == option {
			return true
		}
	}
	return false
}

// CloneQuestions deep-copies a question list.
func CloneQuestions(questions []Question) []Question {
	if questions == nil {
		return nil
	}
	out := make([]Question, len(questions))
	for i, q := range questions {
		out[i] = q.Clone()
	}
	return out
}

// AnswerMap maps a question ID to the chosen option. Unanswered questions are absent.
type AnswerMap map[int]string

// Clone returns an independent copy of the map.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for id, answer := range m {
		out[id] = answer
	}
	return out
}

// AnalysisResult is the structured recommendation returned by the backend.
type AnalysisResult struct {
	FinalRecommendation string   `json:"finalRecommendation"`
	Summary             string   `json:"summary"`
	Reasoning           []string `json:"reasoning"`
	Pros                []string `json:"pros"`
	Cons                []string `json:"cons"`
	NextSteps           []string `json:"nextSteps"`
}

// Clone returns a deep copy of the result.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	return &AnalysisResult{
		FinalRecommendation: r.FinalRecommendation,
		Summary:             r.Summary,
		Reasoning:           append([]string(nil), r.Reasoning...),
		Pros:                append([]string(nil), r.Pros...),
		Cons:                append([]string(nil), r.Cons...),
		NextSteps:           append([]string(nil), r.NextSteps...),
	}
}

// FlowState is a point-in-time snapshot of the decision flow.
type FlowState struct {
	Stage              Stage           `json:"stage"`
	Topic              string          `json:"topic"`
	Questions          []Question      `json:"questions"`
	Answers            AnswerMap       `json:"answers"`
	CurrentIndex       int             `json:"currentIndex"`
	Error              string          `json:"error,omitempty"`
	Loading            string          `json:"loading,omitempty"`
	Result             *AnalysisResult `json:"result,omitempty"`
	CredentialRequired bool            `json:"credentialRequired,omitempty"`
}

// CurrentQuestion returns the question at the current index while answering.
func (s FlowState) CurrentQuestion() (Question, bool) {
	if s.Stage != StageAnswering || s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}
