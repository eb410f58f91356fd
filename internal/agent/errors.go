package agent

import (
	"fmt"

	"github.com/rahul/patternlab/internal/fault"
)

var (
	ErrEmptyTask    = fmt.Errorf("%w: task is required", fault.ErrInput)
	ErrEmptyPrompt  = fmt.Errorf("%w: prompt is required", fault.ErrInput)
	ErrInvalidPlan  = fmt.Errorf("%w: plan is empty or has steps without name or description", fault.ErrInput)
	ErrTooManySteps = fmt.Errorf("%w: plan exceeds the step limit", fault.ErrInput)

	// ErrContextTooLarge is returned before the summary call when the
	// prompt would not fit the configured context window.
	ErrContextTooLarge = fmt.Errorf("%w: execution context too large to summarize", fault.ErrInput)

	ErrSchemaNotInvoked   = fmt.Errorf("%w: model did not use the '%s' tool", fault.ErrUpstreamProtocol, PlanToolName)
	ErrMalformedArguments = fmt.Errorf("%w: planning tool arguments are malformed", fault.ErrUpstreamProtocol)

	ErrEmptyStepResult = fmt.Errorf("%w: step produced no content", fault.ErrUpstreamContent)
	ErrEmptySummary    = fmt.Errorf("%w: summary is empty", fault.ErrUpstreamContent)

	ErrInvalidToolArguments = fmt.Errorf("%w: tool arguments are not a JSON object", fault.ErrToolExecution)
	ErrToolDenied           = fmt.Errorf("%w: tool call denied by policy", fault.ErrToolExecution)

	ErrLoopExceeded = fault.ErrLoopExceeded
)

// StepError reports which step produced no content.
type StepError struct {
	StepName string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("execution of step %q failed to produce content", e.StepName)
}

func (e *StepError) Unwrap() error {
	return ErrEmptyStepResult
}
