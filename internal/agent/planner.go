package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/patternlab/internal/llm"
	"github.com/rahul/patternlab/internal/observability"
	"github.com/rahul/patternlab/internal/prompts"
)

// PlanToolName is the schema the planner forces the model to call.
const PlanToolName = "define_two_step_plan"

// Step is one named unit of work in a plan.
type Step struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s Step) valid() bool {
	return strings.TrimSpace(s.Name) != "" && strings.TrimSpace(s.Description) != ""
}

var planTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        PlanToolName,
		Description: "Defines a 2-step plan to accomplish the given task. Each step must be actionable and specific.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"step1_name": map[string]any{
					"type":        "string",
					"description": "A short, descriptive name for the first step.",
				},
				"step1_description": map[string]any{
					"type":        "string",
					"description": "A detailed description of the actions to be performed in the first step.",
				},
				"step2_name": map[string]any{
					"type":        "string",
					"description": "A short, descriptive name for the second step.",
				},
				"step2_description": map[string]any{
					"type":        "string",
					"description": "A detailed description of the actions to be performed in the second step.",
				},
			},
			"required": []string{"step1_name", "step1_description", "step2_name", "step2_description"},
		},
	},
}

type planArguments struct {
	Step1Name        string `json:"step1_name"`
	Step1Description string `json:"step1_description"`
	Step2Name        string `json:"step2_name"`
	Step2Description string `json:"step2_description"`
}

func (a planArguments) missing() []string {
	var out []string
	for _, f := range []struct{ name, value string }{
		{"step1_name", a.Step1Name},
		{"step1_description", a.Step1Description},
		{"step2_name", a.Step2Name},
		{"step2_description", a.Step2Description},
	} {
		if strings.TrimSpace(f.value) == "" {
			out = append(out, f.name)
		}
	}
	return out
}

// Planner decomposes a task into exactly two steps through a forced tool call.
type Planner struct {
	Model       llm.Model
	Prompts     *prompts.Manager
	Logger      *observability.Logger
	Temperature float64
	CallTimeout time.Duration
}

func NewPlanner(model llm.Model, pm *prompts.Manager, logger *observability.Logger, temperature float64, callTimeout time.Duration) *Planner {
	return &Planner{
		Model:       model,
		Prompts:     pm,
		Logger:      logger,
		Temperature: temperature,
		CallTimeout: callTimeout,
	}
}

// Plan returns the two planned steps. A response without the planning tool
// call fails with ErrSchemaNotInvoked; unparsable or incomplete arguments fail
// with ErrMalformedArguments. Neither is retried.
func (p *Planner) Plan(ctx context.Context, task string) ([]Step, error) {
	if strings.TrimSpace(task) == "" {
		return nil, ErrEmptyTask
	}

	taskID := observability.TaskID(ctx)
	messages := llm.Conversation(p.Prompts.Get(prompts.Planner), "Break down this task into steps: "+task)
	choice, err := llm.Generate(ctx, p.Model, p.CallTimeout, messages,
		llms.WithTools([]llms.Tool{planTool}),
		llms.WithToolChoice(llms.ToolChoice{
			Type:     "function",
			Function: &llms.FunctionReference{Name: PlanToolName},
		}),
		llms.WithTemperature(p.Temperature),
	)
	if err != nil {
		return nil, fmt.Errorf("planning call: %w", err)
	}
	p.Logger.LogLLM(taskID, "plan", task, choice.Content, choice.ToolCalls)

	if len(choice.ToolCalls) == 0 {
		return nil, fmt.Errorf("%w: no tool calls present", ErrSchemaNotInvoked)
	}
	call := choice.ToolCalls[0]
	if call.FunctionCall == nil || call.FunctionCall.Name != PlanToolName {
		name := ""
		if call.FunctionCall != nil {
			name = call.FunctionCall.Name
		}
		return nil, fmt.Errorf("%w: called %q", ErrSchemaNotInvoked, name)
	}

	var args planArguments
	if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArguments, err)
	}
	if missing := args.missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", ErrMalformedArguments, strings.Join(missing, ", "))
	}

	steps := []Step{
		{Name: args.Step1Name, Description: args.Step1Description},
		{Name: args.Step2Name, Description: args.Step2Description},
	}
	p.Logger.LogPlan(taskID, task, steps)
	return steps, nil
}
