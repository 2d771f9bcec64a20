package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"decide-ai/internal/audit"
	"decide-ai/internal/config"
	"decide-ai/internal/credential"
	"decide-ai/internal/models"
	"decide-ai/internal/prompts"
)

// Request is a single structured generation call.
type Request struct {
	APIKey string
	System string
	Prompt string
	Schema *Schema
}

// Backend sends a prompt with a declared output schema and returns the raw
// generated text. Implementations must not retry.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Options tunes a Client. Zero values are replaced with defaults.
type Options struct {
	QuestionCount  int
	RequestTimeout time.Duration
	Recorder       audit.Recorder
}

// Client issues the two decision-flow requests and validates their output.
type Client struct {
	backend  Backend
	gate     *credential.Gate
	count    int
	timeout  time.Duration
	recorder audit.Recorder
}

func NewClient(backend Backend, gate *credential.Gate, opts Options) *Client {
	if opts.QuestionCount <= 0 {
		opts.QuestionCount = prompts.DefaultQuestionCount
	}
	if opts.Recorder == nil {
		opts.Recorder = audit.NopRecorder{}
	}
	return &Client{
		backend:  backend,
		gate:     gate,
		count:    opts.QuestionCount,
		timeout:  opts.RequestTimeout,
		recorder: opts.Recorder,
	}
}

// Gate exposes the credential gate so drivers can report its state.
func (c *Client) Gate() *credential.Gate {
	return c.gate
}

// RequestQuestions asks the backend for the questionnaire on topic.
func (c *Client) RequestQuestions(ctx context.Context, topic string) ([]models.Question, error) {
	const op = "request questions"

	req := Request{
		System: prompts.QuestionSystemPrompt,
		Prompt: prompts.BuildQuestionPromptN(topic, c.count),
		Schema: QuestionsSchema,
	}

	var questions []models.Question
	err := c.call(ctx, op, audit.KindQuestions, topic, req, func(raw string) error {
		var err error
		questions, err = parseQuestions(raw)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(questions) != c.count {
		config.WithContext(ctx).Warnf("backend returned %d questions, asked for %d", len(questions), c.count)
	}
	return questions, nil
}

// RequestAnalysis asks the backend for a recommendation. Inputs are not modified.
func (c *Client) RequestAnalysis(ctx context.Context, topic string, questions []models.Question, answers models.AnswerMap) (*models.AnalysisResult, error) {
	const op = "request analysis"

	req := Request{
		System: prompts.AnalysisSystemPrompt,
		Prompt: prompts.BuildAnalysisPrompt(topic, questions, answers),
		Schema: AnalysisSchema,
	}

	var result *models.AnalysisResult
	err := c.call(ctx, op, audit.KindAnalysis, topic, req, func(raw string) error {
		var err error
		result, err = parseAnalysis(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, op string, kind audit.Kind, topic string, req Request, parse func(string) error) error {
	requestID := config.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = config.ContextWithRequestID(ctx, requestID)
	}
	log := config.WithContext(ctx).WithField("backend", c.backend.Name()).WithField("op", op)

	entry := audit.Entry{
		RequestID: requestID,
		Kind:      kind,
		Backend:   c.backend.Name(),
		Topic:     topic,
	}
	started := timeNow()
	finish := func(raw string, err error) error {
		entry.Duration = timeNow().Sub(started)
		if err != nil {
			entry.Status = audit.StatusFailed
			entry.ErrorKind = string(KindOf(err))
			entry.ErrorMessage = err.Error()
			if k := KindOf(err); k == KindParseError || k == KindSchemaMismatch {
				entry.RawResponse = raw
			}
		} else {
			entry.Status = audit.StatusOK
		}
		if recErr := c.recorder.Record(ctx, entry); recErr != nil {
			log.WithError(recErr).Warn("record diagnostics entry")
		}
		return err
	}

	key, err := c.gate.Acquire(ctx)
	if err != nil {
		return finish("", newError(KindMissingCredential, op, "no usable api credential", err))
	}
	req.APIKey = key

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.backend.Generate(ctx, req)
	if err != nil {
		if credentialRejected(err) {
			log.WithError(err).Warn("backend rejected the api credential")
			c.gate.Reject(ctx)
			return finish("", newError(KindInvalidCredential, op, "api credential rejected", err))
		}
		log.WithError(err).Error("generation request failed")
		return finish("", newError(KindUnclassified, op, "generation failed", err))
	}

	if err := parse(raw); err != nil {
		var genErr *Error
		if errors.As(err, &genErr) {
			genErr.Op = op
		}
		if KindOf(err) != KindEmptyResponse {
			log.WithError(err).Errorf("invalid response payload. Raw response:\n%s", raw)
		} else {
			log.Warn("backend returned no text")
		}
		return finish(raw, err)
	}

	log.Infof("%s succeeded in %s", op, timeNow().Sub(started).Round(time.Millisecond))
	return finish(raw, nil)
}

func schemaMismatch(format string, args ...any) *Error {
	return newError(KindSchemaMismatch, "", fmt.Sprintf(format, args...), nil)
}

var timeNow = time.Now
