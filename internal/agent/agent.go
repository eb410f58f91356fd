// Package agent holds the orchestration engines: the plan, execute and
// summarize pipeline, the tool loop and direct prompting.
package agent

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/rahul/patternlab/internal/observability"
)

// Outcome is what one agent run returns to the caller.
type Outcome struct {
	Steps  []StepResult `json:"steps"`
	Result string       `json:"result"`
}

// Agent chains the planner, executor and summarizer.
type Agent struct {
	Planner    *Planner
	Executor   *Executor
	Summarizer *Summarizer
	Logger     *observability.Logger
}

func New(planner *Planner, executor *Executor, summarizer *Summarizer, logger *observability.Logger) *Agent {
	return &Agent{
		Planner:    planner,
		Executor:   executor,
		Summarizer: summarizer,
		Logger:     logger,
	}
}

// Run plans task, executes every step and summarizes the results. Any
// failure aborts the whole run.
func (a *Agent) Run(ctx context.Context, task string) (*Outcome, error) {
	if strings.TrimSpace(task) == "" {
		return nil, ErrEmptyTask
	}
	taskID := observability.TaskID(ctx)
	if taskID == "" {
		taskID = uuid.NewString()
		ctx = observability.WithTaskID(ctx, taskID)
	}

	steps, err := a.Planner.Plan(ctx, task)
	if err != nil {
		a.Logger.LogError(taskID, "plan", err)
		return nil, err
	}

	results, execLog, err := a.Executor.Execute(ctx, task, steps)
	if err != nil {
		a.Logger.LogError(taskID, "execute", err)
		return nil, err
	}

	summary, err := a.Summarizer.Summarize(ctx, task, execLog.Render())
	if err != nil {
		a.Logger.LogError(taskID, "summarize", err)
		return nil, err
	}

	return &Outcome{Steps: results, Result: summary}, nil
}
