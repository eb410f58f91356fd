package agent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/patternlab/internal/agent"
	"github.com/rahul/patternlab/internal/fault"
	"github.com/rahul/patternlab/internal/llm/llmtest"
	"github.com/rahul/patternlab/internal/observability"
)

func newExecutor(t *testing.T, model *llmtest.ScriptedModel, maxSteps int) *agent.Executor {
	t.Helper()
	return agent.NewExecutor(model, defaultPrompts(t), observability.Discard(), maxSteps, 0.7, 0)
}

func TestExecutor_OrderPreserving(t *testing.T) {
	model := llmtest.NewScriptedModel(
		llmtest.Text("first result, with detail"),
		llmtest.Text("second result"),
		llmtest.Text("third result"),
	)
	steps := []agent.Step{
		{Name: "s1", Description: "d1"},
		{Name: "s2", Description: "d2"},
		{Name: "s3", Description: "d3"},
	}

	results, execLog, err := newExecutor(t, model, 8).Execute(context.Background(), "task", steps)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "first result, with detail", results[0].Result)
	assert.Equal(t, "second result", results[1].Result)
	assert.Equal(t, "third result", results[2].Result)
	assert.Equal(t, "s3: d3", results[2].Action)

	calls := model.Calls()
	require.Len(t, calls, 3)
	assert.NotContains(t, calls[0].LastUserText(), "first result")
	assert.Contains(t, calls[1].LastUserText(), "first result, with detail")
	assert.Contains(t, calls[2].LastUserText(), "first result, with detail")
	assert.Contains(t, calls[2].LastUserText(), "second result")

	require.Equal(t, 3, execLog.Len())
	assert.Equal(t, agent.StepRecord{Name: "s2", Description: "d2", Result: "second result"}, execLog.Records()[1])
	assert.Equal(t,
		"\nStep: s1 - d1\nResult: first result, with detail\nStep: s2 - d2\nResult: second result\nStep: s3 - d3\nResult: third result",
		execLog.Render())
}

func TestExecutor_FailFast(t *testing.T) {
	model := llmtest.NewScriptedModel(
		llmtest.Text("ok"),
		llmtest.Text(""),
		llmtest.Text("never requested"),
	)
	steps := []agent.Step{{Name: "a", Description: "b"}, {Name: "c", Description: "d"}, {Name: "e", Description: "f"}}

	results, execLog, err := newExecutor(t, model, 8).Execute(context.Background(), "task", steps)
	assert.Nil(t, results)
	assert.Nil(t, execLog)
	assert.ErrorIs(t, err, agent.ErrEmptyStepResult)
	assert.EqualError(t, err, `execution of step "c" failed to produce content`)
	assert.Len(t, model.Calls(), 2)
}

func TestExecutor_RejectsInvalidPlans(t *testing.T) {
	cases := []struct {
		name  string
		steps []agent.Step
		want  error
	}{
		{"empty", nil, agent.ErrInvalidPlan},
		{"blank name", []agent.Step{{Name: " ", Description: "d"}}, agent.ErrInvalidPlan},
		{"blank description", []agent.Step{{Name: "n", Description: ""}}, agent.ErrInvalidPlan},
		{"too many", []agent.Step{{Name: "a", Description: "b"}, {Name: "c", Description: "d"}, {Name: "e", Description: "f"}}, agent.ErrTooManySteps},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := llmtest.NewScriptedModel()
			_, _, err := newExecutor(t, model, 2).Execute(context.Background(), "task", tc.steps)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, fault.ErrInput)
			assert.Empty(t, model.Calls())
		})
	}
}

func TestExecutor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := llmtest.NewScriptedModel(llmtest.Text("unused"))
	_, _, err := newExecutor(t, model, 8).Execute(ctx, "task", []agent.Step{{Name: "a", Description: "b"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, model.Calls())
}

func TestExecutionLog_EmptyRendersEmpty(t *testing.T) {
	var execLog agent.ExecutionLog
	assert.Equal(t, "", execLog.Render())
	assert.Empty(t, execLog.Records())
}
