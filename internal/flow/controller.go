// Package flow drives the guided decision wizard: topic, questionnaire,
// analysis and result.
package flow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"decide-ai/internal/config"
	"decide-ai/internal/generation"
	"decide-ai/internal/models"
)

var (
	ErrBlankTopic        = errors.New("topic must not be blank")
	ErrBusy              = errors.New("a request is already in progress")
	ErrInvalidTransition = errors.New("action not allowed in the current stage")
	ErrNotAnswered       = errors.New("current question has no answer")
	ErrUnknownOption     = errors.New("option is not one of the current question's choices")
)

const (
	LoadingQuestions = "Generating your personalized questions..."
	LoadingAnalysis  = "Analyzing your answers..."

	MsgInvalidCredential = "Your API key was not found or is no longer valid. Please select a valid key and submit again."
	MsgMissingCredential = "An API key is required. Please select a key and submit again."
	MsgQuestionsFailed   = "Failed to generate questions. Please try again."
	MsgAnalysisFailed    = "Failed to analyze your answers. Please try again."
)

// Generator is the part of the generation client the controller needs.
type Generator interface {
	RequestQuestions(ctx context.Context, topic string) ([]models.Question, error)
	RequestAnalysis(ctx context.Context, topic string, questions []models.Question, answers models.AnswerMap) (*models.AnalysisResult, error)
}

// Task is the handle of a backend call started by SubmitTopic or Advance.
type Task struct {
	done chan struct{}
	err  error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

// Done is closed once the call finished and the outcome was applied.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the call finished. The error is the backend failure, if
// any; the controller has already moved back to START in that case.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Controller owns the flow state. All methods are safe for concurrent use;
// at most one backend call is outstanding at a time.
type Controller struct {
	gen Generator

	mu    sync.Mutex
	state models.FlowState
	epoch uint64
}

func NewController(gen Generator) *Controller {
	return &Controller{
		gen:   gen,
		state: initialState(),
	}
}

func initialState() models.FlowState {
	return models.FlowState{
		Stage:   models.StageStart,
		Answers: models.AnswerMap{},
	}
}

// State returns a snapshot that shares no memory with the controller.
func (c *Controller) State() models.FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.state
	snapshot.Questions = models.CloneQuestions(c.state.Questions)
	snapshot.Answers = c.state.Answers.Clone()
	snapshot.Result = c.state.Result.Clone()
	return snapshot
}

// SubmitTopic starts question generation for topic.
func (c *Controller) SubmitTopic(ctx context.Context, topic string) (*Task, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrBlankTopic
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Stage.Loading() {
		return nil, ErrBusy
	}
	if c.state.Stage != models.StageStart {
		return nil, ErrInvalidTransition
	}

	c.state = initialState()
	c.state.Topic = topic
	c.state.Stage = models.StageGeneratingQuestions
	c.state.Loading = LoadingQuestions
	epoch := c.epoch

	config.WithContext(ctx).WithField("stage", c.state.Stage).Info("generating questions")

	task := newTask()
	go c.generateQuestions(context.WithoutCancel(ctx), epoch, topic, task)
	return task, nil
}

func (c *Controller) generateQuestions(ctx context.Context, epoch uint64, topic string, task *Task) {
	questions, err := c.gen.RequestQuestions(ctx, topic)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer task.finish(err)

	if epoch != c.epoch {
		config.WithContext(ctx).Info("discarding questions for a flow that was reset")
		return
	}
	if err != nil {
		c.fail(ctx, err, MsgQuestionsFailed)
		return
	}

	c.state.Stage = models.StageAnswering
	c.state.Questions = models.CloneQuestions(questions)
	c.state.Answers = models.AnswerMap{}
	c.state.CurrentIndex = 0
	c.state.Loading = ""
	c.state.Error = ""
	c.state.CredentialRequired = false
}

// SelectOption records option as the answer to the current question.
func (c *Controller) SelectOption(option string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Stage.Loading() {
		return ErrBusy
	}
	question, ok := c.state.CurrentQuestion()
	if !ok {
		return ErrInvalidTransition
	}
	if !question.HasOption(option) {
		return ErrUnknownOption
	}
	c.state.Answers[question.ID] = option
	return nil
}

// CanAdvance reports whether Advance would be accepted right now.
func (c *Controller) CanAdvance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answeredLocked()
}

func (c *Controller) answeredLocked() bool {
	question, ok := c.state.CurrentQuestion()
	if !ok {
		return false
	}
	_, answered := c.state.Answers[question.ID]
	return answered
}

// Advance moves to the next question. From the last question it starts the
// analysis and returns its Task; otherwise the returned Task is nil.
func (c *Controller) Advance(ctx context.Context) (*Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Stage.Loading() {
		return nil, ErrBusy
	}
	if c.state.Stage != models.StageAnswering {
		return nil, ErrInvalidTransition
	}
	if !c.answeredLocked() {
		return nil, ErrNotAnswered
	}

	if c.state.CurrentIndex < len(c.state.Questions)-1 {
		c.state.CurrentIndex++
		return nil, nil
	}

	c.state.Stage = models.StageAnalyzing
	c.state.Loading = LoadingAnalysis
	epoch := c.epoch
	topic := c.state.Topic
	questions := models.CloneQuestions(c.state.Questions)
	answers := c.state.Answers.Clone()

	config.WithContext(ctx).WithField("stage", c.state.Stage).Infof("analyzing %d answers", len(answers))

	task := newTask()
	go c.analyze(context.WithoutCancel(ctx), epoch, topic, questions, answers, task)
	return task, nil
}

func (c *Controller) analyze(ctx context.Context, epoch uint64, topic string, questions []models.Question, answers models.AnswerMap, task *Task) {
	result, err := c.gen.RequestAnalysis(ctx, topic, questions, answers)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer task.finish(err)

	if epoch != c.epoch {
		config.WithContext(ctx).Info("discarding analysis for a flow that was reset")
		return
	}
	if err != nil {
		c.fail(ctx, err, MsgAnalysisFailed)
		return
	}

	c.state.Stage = models.StageResult
	c.state.Result = result.Clone()
	c.state.Loading = ""
	c.state.Error = ""
	c.state.CredentialRequired = false
}

// Back returns to the previous question. At the first question it does nothing.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Stage.Loading() {
		return ErrBusy
	}
	if c.state.Stage != models.StageAnswering {
		return ErrInvalidTransition
	}
	if c.state.CurrentIndex > 0 {
		c.state.CurrentIndex--
	}
	return nil
}

// Reset returns to the initial state from any stage. A call still in flight
// runs to completion but its outcome is discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.state = initialState()
}

// fail moves the flow back to START with a user-facing message. Callers hold c.mu.
func (c *Controller) fail(ctx context.Context, err error, generic string) {
	kind := generation.KindOf(err)
	config.WithContext(ctx).WithError(err).WithField("error_kind", kind).Warn("generation failed, returning to start")

	topic := c.state.Topic
	c.state = initialState()
	c.state.Topic = topic
	c.state.Error = UserMessage(err, generic)
	c.state.CredentialRequired = kind == generation.KindMissingCredential || kind == generation.KindInvalidCredential
}

// UserMessage maps a generation failure to the text shown to the user.
func UserMessage(err error, generic string) string {
	switch generation.KindOf(err) {
	case generation.KindInvalidCredential:
		return MsgInvalidCredential
	case generation.KindMissingCredential:
		return MsgMissingCredential
	case generation.KindUnclassified:
		if msg := generation.BackendMessage(err); msg != "" {
			return msg
		}
	}
	return generic
}
