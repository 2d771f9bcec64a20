// Package cli is a terminal stepper over the decision flow.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"decide-ai/internal/flow"
	"decide-ai/internal/models"
)

const letters = "abcdefghijklmnopqrstuvwxyz"

type App struct {
	in   *bufio.Reader
	out  io.Writer
	flow *flow.Controller
}

// New builds an App. in should be shared with any credential prompt so both
// read from one buffer.
func New(in *bufio.Reader, out io.Writer, controller *flow.Controller) *App {
	return &App{in: in, out: out, flow: controller}
}

// Run drives the flow until the user quits or input ends.
func (a *App) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		state := a.flow.State()
		var (
			quit bool
			err  error
		)
		switch state.Stage {
		case models.StageStart:
			quit, err = a.start(ctx, state)
		case models.StageAnswering:
			quit, err = a.answer(ctx, state)
		case models.StageResult:
			quit, err = a.result(state)
		default:
			// Loading stages are awaited where the task is started.
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if quit {
			fmt.Fprintln(a.out, "Goodbye.")
			return nil
		}
	}
}

func (a *App) start(ctx context.Context, state models.FlowState) (bool, error) {
	if state.Error != "" {
		fmt.Fprintf(a.out, "\n! %s\n", state.Error)
	}
	fmt.Fprint(a.out, "\nWhat decision do you need help with? (q to quit)\n> ")

	line, err := a.readLine()
	if err != nil {
		return false, err
	}
	if strings.EqualFold(line, "q") {
		return true, nil
	}

	task, err := a.flow.SubmitTopic(ctx, line)
	if errors.Is(err, flow.ErrBlankTopic) {
		fmt.Fprintln(a.out, "Please describe your decision.")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	a.await(task, flow.LoadingQuestions)
	return false, nil
}

func (a *App) answer(ctx context.Context, state models.FlowState) (bool, error) {
	question, _ := state.CurrentQuestion()
	selected := state.Answers[question.ID]

	fmt.Fprintf(a.out, "\nQuestion %d/%d: %s\n", state.CurrentIndex+1, len(state.Questions), question.Text)
	for i, option := range question.Options {
		marker := " "
		if option == selected {
			marker = "*"
		}
		fmt.Fprintf(a.out, " %s %c) %s\n", marker, letters[i], option)
	}
	fmt.Fprintf(a.out, "[%c-%c] choose, n next, p back, r start over, q quit\n> ", letters[0], letters[len(question.Options)-1])

	line, err := a.readLine()
	if err != nil {
		return false, err
	}
	cmd := strings.ToLower(line)

	switch cmd {
	case "q":
		return true, nil
	case "r":
		a.flow.Reset()
		return false, nil
	case "p":
		return false, a.report(a.flow.Back())
	case "n":
		task, err := a.flow.Advance(ctx)
		if err != nil {
			return false, a.report(err)
		}
		if task != nil {
			a.await(task, flow.LoadingAnalysis)
		}
		return false, nil
	}

	if len(cmd) == 1 {
		if idx := strings.IndexByte(letters, cmd[0]); idx >= 0 && idx < len(question.Options) {
			return false, a.report(a.flow.SelectOption(question.Options[idx]))
		}
	}
	fmt.Fprintf(a.out, "Unknown input %q.\n", line)
	return false, nil
}

func (a *App) result(state models.FlowState) (bool, error) {
	renderResult(a.out, state.Topic, state.Result)
	fmt.Fprint(a.out, "\nr start over, q quit\n> ")

	line, err := a.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "r":
		a.flow.Reset()
	case "q":
		return true, nil
	}
	return false, nil
}

func (a *App) await(task *flow.Task, loading string) {
	fmt.Fprintln(a.out, loading)
	// Failures are reflected in the flow state and shown on the next screen.
	_ = task.Wait()
}

// report prints rejected actions; they never stop the stepper.
func (a *App) report(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, flow.ErrNotAnswered):
		fmt.Fprintln(a.out, "Choose an answer before moving on.")
	case errors.Is(err, flow.ErrBusy), errors.Is(err, flow.ErrInvalidTransition), errors.Is(err, flow.ErrUnknownOption):
		fmt.Fprintln(a.out, err.Error())
	default:
		return err
	}
	return nil
}

func (a *App) readLine() (string, error) {
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func renderResult(w io.Writer, topic string, result *models.AnalysisResult) {
	if result == nil {
		return
	}
	fmt.Fprintf(w, "\n=== Recommendation for %q ===\n", topic)
	fmt.Fprintf(w, "\n%s\n\n%s\n", result.FinalRecommendation, result.Summary)
	section(w, "Reasoning", result.Reasoning)
	section(w, "Pros", result.Pros)
	section(w, "Cons", result.Cons)
	section(w, "Next steps", result.NextSteps)
}

func section(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
}
