package prompts

import (
	"fmt"
	"strings"

	"decide-ai/internal/models"
)

// DefaultQuestionCount is how many questions the wizard asks for.
const DefaultQuestionCount = 20

const (
	maxTopicRunes    = 300
	maxQuestionRunes = 400
	maxAnswerRunes   = 200

	// NoAnswer marks a question the user skipped in the analysis transcript.
	NoAnswer = "(no answer)"
)

const QuestionSystemPrompt = `You are a thoughtful decision coach. You help people make a personal decision by asking focused multiple-choice questions that uncover their situation, constraints and preferences. Respond only with JSON that matches the declared schema.`

const AnalysisSystemPrompt = `You are an expert decision analyst. You read a person's answers to a decision questionnaire and give a clear, honest, personalised recommendation. Respond only with JSON that matches the declared schema.`

// BuildQuestionPrompt returns the instruction asking for DefaultQuestionCount questions.
func BuildQuestionPrompt(topic string) string {
	return BuildQuestionPromptN(topic, DefaultQuestionCount)
}

// BuildQuestionPromptN is BuildQuestionPrompt with an explicit question count.
func BuildQuestionPromptN(topic string, count int) string {
	if count <= 0 {
		count = DefaultQuestionCount
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("The user needs help deciding: %q.\n\n", sanitizeForPrompt(topic, maxTopicRunes)))
	builder.WriteString(fmt.Sprintf("Generate exactly %d multiple-choice questions that will help understand their needs, constraints and preferences.\n", count))
	builder.WriteString("Cover these dimensions of the decision:\n")
	builder.WriteString("- practical needs and day-to-day usage\n")
	builder.WriteString("- personal preferences and priorities\n")
	builder.WriteString("- budget and cost sensitivity\n")
	builder.WriteString("- long-term goals and consequences\n")
	builder.WriteString("- situational context and constraints\n\n")
	builder.WriteString("Rules:\n")
	builder.WriteString("- Each question has 3 or 4 distinct, concise options.\n")
	builder.WriteString(fmt.Sprintf("- Number the questions with integer ids from 1 to %d.\n", count))
	builder.WriteString("- Do not repeat questions and do not ask for free-text answers.\n")
	builder.WriteString("Return a JSON array of objects with the fields id, text and options, in that order.")
	return builder.String()
}

// BuildAnalysisPrompt embeds the question/answer transcript in the recommendation instruction.
// Unanswered questions are listed with the NoAnswer marker.
func BuildAnalysisPrompt(topic string, questions []models.Question, answers models.AnswerMap) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("The user is deciding: %q.\n\n", sanitizeForPrompt(topic, maxTopicRunes)))
	builder.WriteString("Here are their answers to the questionnaire:\n\n")
	builder.WriteString(Transcript(questions, answers))
	builder.WriteString("\nBased on these answers, provide:\n")
	builder.WriteString("- finalRecommendation: the single option you recommend, in one short sentence\n")
	builder.WriteString("- summary: two or three sentences explaining the recommendation\n")
	builder.WriteString("- reasoning: the key factors from their answers that drove the recommendation\n")
	builder.WriteString("- pros: advantages of the recommended choice for this user\n")
	builder.WriteString("- cons: drawbacks or risks they should be aware of\n")
	builder.WriteString("- nextSteps: concrete actions to take next\n")
	builder.WriteString("Be specific to the user's answers rather than generic.")
	return builder.String()
}

// Transcript renders each question paired with its recorded answer, one pair per block.
func Transcript(questions []models.Question, answers models.AnswerMap) string {
	var builder strings.Builder
	for i, question := range questions {
		answer, ok := answers[question.ID]
		answer = sanitizeForPrompt(answer, maxAnswerRunes)
		if !ok || answer == "" {
			answer = NoAnswer
		}
		builder.WriteString(fmt.Sprintf("Q%d: %s\n", i+1, sanitizeForPrompt(question.Text, maxQuestionRunes)))
		builder.WriteString(fmt.Sprintf("A: %s\n", answer))
	}
	return builder.String()
}

func sanitizeForPrompt(input string, limit int) string {
	collapsed := strings.Join(strings.Fields(strings.TrimSpace(input)), " ")
	if limit <= 0 {
		return collapsed
	}
	runes := []rune(collapsed)
	if len(runes) <= limit {
		return collapsed
	}
	if limit > 3 {
		return string(runes[:limit-3]) + "..."
	}
	return string(runes[:limit])
}
