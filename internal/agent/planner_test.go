package agent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/patternlab/internal/agent"
	"github.com/rahul/patternlab/internal/fault"
	"github.com/rahul/patternlab/internal/llm"
	"github.com/rahul/patternlab/internal/llm/llmtest"
	"github.com/rahul/patternlab/internal/observability"
)

func TestPlanner_Plan(t *testing.T) {
	model := llmtest.NewScriptedModel(planCall(tripPlan))
	planner := agent.NewPlanner(model, defaultPrompts(t), observability.Discard(), 0.3, 0)

	steps, err := planner.Plan(context.Background(), "Plan a trip")
	require.NoError(t, err)
	assert.Equal(t, []agent.Step{
		{Name: "Research destinations", Description: "Compare three candidate cities"},
		{Name: "Book itinerary", Description: "Reserve flights and hotels"},
	}, steps)

	calls := model.Calls()
	require.Len(t, calls, 1)
	assert.InDelta(t, 0.3, calls[0].Options.Temperature, 1e-9)
}

func TestPlanner_Failures(t *testing.T) {
	cases := []struct {
		name     string
		response llmtest.Response
		want     error
		contains string
	}{
		{
			name:     "no tool call",
			response: llmtest.Text("Step 1: research\nStep 2: book"),
			want:     agent.ErrSchemaNotInvoked,
		},
		{
			name:     "other tool",
			response: llmtest.ToolCalls(llmtest.FunctionCall("c1", "propose_plan", `{}`)),
			want:     agent.ErrSchemaNotInvoked,
			contains: "propose_plan",
		},
		{
			name:     "not json",
			response: planCall(`{"step1_name":`),
			want:     agent.ErrMalformedArguments,
		},
		{
			name:     "missing field",
			response: planCall(`{"step1_name":"a","step1_description":"b","step2_name":"c"}`),
			want:     agent.ErrMalformedArguments,
			contains: "step2_description",
		},
		{
			name:     "blank field",
			response: planCall(`{"step1_name":" ","step1_description":"b","step2_name":"c","step2_description":"d"}`),
			want:     agent.ErrMalformedArguments,
			contains: "step1_name",
		},
		{
			name:     "no choices",
			response: llmtest.Response{},
			want:     llm.ErrNoChoices,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := llmtest.NewScriptedModel(tc.response)
			planner := agent.NewPlanner(model, defaultPrompts(t), observability.Discard(), 0.7, 0)

			steps, err := planner.Plan(context.Background(), "Plan a trip")
			assert.Nil(t, steps)
			require.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, fault.ErrUpstreamProtocol)
			if tc.contains != "" {
				assert.Contains(t, err.Error(), tc.contains)
			}
			assert.Len(t, model.Calls(), 1, "no retry")
		})
	}
}

func TestAgent_MalformedPlanIssuesNoStepCalls(t *testing.T) {
	model := llmtest.NewScriptedModel(
		planCall(`{"step1_name":"a","step1_description":"b"}`),
		llmtest.Text("should never be requested"),
	)
	_, err := newAgent(t, model).Run(context.Background(), "Plan a trip")
	assert.ErrorIs(t, err, agent.ErrMalformedArguments)
	assert.Len(t, model.Calls(), 1)
}
