package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/patternlab/internal/llm"
	"github.com/rahul/patternlab/internal/observability"
	"github.com/rahul/patternlab/internal/prompts"
)

// StatusCompleted is the only status a returned StepResult carries; failed
// steps abort the run instead.
const StatusCompleted = "Completed"

// StepRecord is one completed step as it appears in later prompts.
type StepRecord struct {
	Name        string
	Description string
	Result      string
}

// ExecutionLog accumulates completed steps for one invocation. It is
// append-only and never shared.
type ExecutionLog struct {
	records []StepRecord
}

func (l *ExecutionLog) Append(rec StepRecord) {
	l.records = append(l.records, rec)
}

// Records returns a copy of the completed steps in execution order.
func (l *ExecutionLog) Records() []StepRecord {
	out := make([]StepRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *ExecutionLog) Len() int {
	return len(l.records)
}

// Render formats the log for inclusion in a prompt. An empty log renders as
// the empty string.
func (l *ExecutionLog) Render() string {
	var b strings.Builder
	for _, rec := range l.records {
		fmt.Fprintf(&b, "\nStep: %s - %s\nResult: %s", rec.Name, rec.Description, rec.Result)
	}
	return b.String()
}

// StepResult is the caller-facing record of one executed step.
type StepResult struct {
	Action string `json:"action"`
	Status string `json:"status"`
	Result string `json:"result"`
}

// Executor runs a plan one step at a time, feeding each step the results of
// the steps before it.
type Executor struct {
	Model       llm.Model
	Prompts     *prompts.Manager
	Logger      *observability.Logger
	MaxSteps    int
	Temperature float64
	CallTimeout time.Duration
}

func NewExecutor(model llm.Model, pm *prompts.Manager, logger *observability.Logger, maxSteps int, temperature float64, callTimeout time.Duration) *Executor {
	return &Executor{
		Model:       model,
		Prompts:     pm,
		Logger:      logger,
		MaxSteps:    maxSteps,
		Temperature: temperature,
		CallTimeout: callTimeout,
	}
}

// Execute runs steps in order. The first step that fails aborts the run and
// no partial results are returned.
func (e *Executor) Execute(ctx context.Context, task string, steps []Step) ([]StepResult, *ExecutionLog, error) {
	if strings.TrimSpace(task) == "" {
		return nil, nil, ErrEmptyTask
	}
	if len(steps) == 0 {
		return nil, nil, ErrInvalidPlan
	}
	for _, s := range steps {
		if !s.valid() {
			return nil, nil, ErrInvalidPlan
		}
	}
	if e.MaxSteps > 0 && len(steps) > e.MaxSteps {
		return nil, nil, fmt.Errorf("%w: %d steps, limit %d", ErrTooManySteps, len(steps), e.MaxSteps)
	}

	taskID := observability.TaskID(ctx)
	execLog := &ExecutionLog{}
	results := make([]StepResult, 0, len(steps))

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		e.Logger.LogStep(taskID, i+1, step.Name, "running")

		prompt := fmt.Sprintf("Task: %s\nPrevious context: %s\nCurrent step: %s - %s",
			task, execLog.Render(), step.Name, step.Description)
		choice, err := llm.Generate(ctx, e.Model, e.CallTimeout,
			llm.Conversation(e.Prompts.Get(prompts.Executor), prompt),
			llms.WithTemperature(e.Temperature),
		)
		if err != nil {
			e.Logger.LogStep(taskID, i+1, step.Name, "failed")
			return nil, nil, fmt.Errorf("step %q: %w", step.Name, err)
		}
		e.Logger.LogLLM(taskID, "execute", prompt, choice.Content, nil)

		if strings.TrimSpace(choice.Content) == "" {
			e.Logger.LogStep(taskID, i+1, step.Name, "failed")
			return nil, nil, &StepError{StepName: step.Name}
		}

		execLog.Append(StepRecord{Name: step.Name, Description: step.Description, Result: choice.Content})
		results = append(results, StepResult{
			Action: step.Name + ": " + step.Description,
			Status: StatusCompleted,
			Result: choice.Content,
		})
		e.Logger.LogStep(taskID, i+1, step.Name, "completed")
	}

	return results, execLog, nil
}
