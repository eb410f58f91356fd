package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/patternlab/internal/fault"
	"github.com/rahul/patternlab/internal/governance"
	"github.com/rahul/patternlab/internal/llm"
	"github.com/rahul/patternlab/internal/observability"
	"github.com/rahul/patternlab/internal/prompts"
	"github.com/rahul/patternlab/internal/tools"
)

// LoopState is the phase a tool loop run is in.
type LoopState string

const (
	StateAwaitingModel    LoopState = "AWAITING_MODEL"
	StateDispatchingTools LoopState = "DISPATCHING_TOOLS"
	StateDone             LoopState = "DONE"
)

// DefaultMaxToolTurns bounds model turns when none is configured.
const DefaultMaxToolTurns = 10

// ToolCall is one executed tool invocation as reported to the caller.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Result    string         `json:"result"`
}

// ToolLoopResult is the final answer together with every tool call made to
// reach it, in call order.
type ToolLoopResult struct {
	Response  string     `json:"response"`
	ToolCalls []ToolCall `json:"toolCalls"`
	Turns     int        `json:"-"`
}

// ToolLoop alternates between the model and the registered tools until the
// model answers without requesting a tool.
type ToolLoop struct {
	Model         llm.Model
	Registry      *tools.Registry
	Policy        governance.PolicyEngine
	Prompts       *prompts.Manager
	Logger        *observability.Logger
	MaxTurns      int
	CallTimeout   time.Duration
	ParallelTools bool
}

func NewToolLoop(model llm.Model, registry *tools.Registry, policy governance.PolicyEngine, pm *prompts.Manager, logger *observability.Logger) *ToolLoop {
	return &ToolLoop{
		Model:    model,
		Registry: registry,
		Policy:   policy,
		Prompts:  pm,
		Logger:   logger,
		MaxTurns: DefaultMaxToolTurns,
	}
}

// pendingCall is a requested call that passed lookup, argument parsing and
// policy, waiting to be executed.
type pendingCall struct {
	request llms.ToolCall
	tool    tools.Tool
	input   string
	args    map[string]any
	result  string
}

// Run answers prompt, executing tool calls the model requests along the way.
// An unknown tool, malformed arguments, a policy denial or a failing tool
// ends the run with an error; so does exceeding MaxTurns.
func (l *ToolLoop) Run(ctx context.Context, prompt string) (*ToolLoopResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	taskID := observability.TaskID(ctx)
	maxTurns := l.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxToolTurns
	}

	messages := llm.Conversation(l.Prompts.Get(prompts.Tools), prompt)
	definitions := l.Registry.Definitions()
	var calls []ToolCall
	state := StateAwaitingModel

	for turn := 1; turn <= maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		choice, err := llm.Generate(ctx, l.Model, l.CallTimeout, messages,
			llms.WithTools(definitions),
			llms.WithToolChoice("auto"),
		)
		if err != nil {
			l.Logger.LogError(taskID, "tool_loop", err)
			return nil, fmt.Errorf("model turn %d: %w", turn, err)
		}
		l.Logger.LogLLM(taskID, "tool_loop", map[string]any{
			"turn":     turn,
			"messages": transcript(messages),
		}, choice.Content, choice.ToolCalls)

		if len(choice.ToolCalls) == 0 {
			l.Logger.LogTransition(taskID, turn, string(state), string(StateDone))
			return &ToolLoopResult{Response: choice.Content, ToolCalls: calls, Turns: turn}, nil
		}

		// The assistant message carrying the requests precedes their results.
		messages = append(messages, assistantMessage(choice))
		l.Logger.LogTransition(taskID, turn, string(state), string(StateDispatchingTools))
		state = StateDispatchingTools

		executed, err := l.dispatch(ctx, choice.ToolCalls)
		if err != nil {
			l.Logger.LogError(taskID, "dispatch", err)
			return nil, err
		}
		for _, pc := range executed {
			calls = append(calls, ToolCall{
				Name:      pc.tool.Name(),
				Arguments: pc.args,
				Result:    pc.result,
			})
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: pc.request.ID,
						Name:       pc.request.FunctionCall.Name,
						Content:    pc.result,
					},
				},
			})
		}

		l.Logger.LogTransition(taskID, turn, string(state), string(StateAwaitingModel))
		state = StateAwaitingModel
	}

	err := fmt.Errorf("%w: no final answer after %d turns", ErrLoopExceeded, maxTurns)
	l.Logger.LogError(taskID, "tool_loop", err)
	return nil, err
}

func assistantMessage(choice *llms.ContentChoice) llms.MessageContent {
	var parts []llms.ContentPart
	if choice.Content != "" {
		parts = append(parts, llms.TextContent{Text: choice.Content})
	}
	for _, tc := range choice.ToolCalls {
		parts = append(parts, tc)
	}
	return llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts}
}

// transcript flattens the conversation sent on a turn into one line per
// message for the LLM log.
func transcript(messages []llms.MessageContent) []string {
	out := make([]string, 0, len(messages))
	for _, msg := range messages {
		var parts []string
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				parts = append(parts, p.Text)
			case llms.ToolCall:
				if p.FunctionCall != nil {
					parts = append(parts, fmt.Sprintf("call %s %s(%s)", p.ID, p.FunctionCall.Name, p.FunctionCall.Arguments))
				}
			case llms.ToolCallResponse:
				parts = append(parts, fmt.Sprintf("result %s %s: %s", p.ToolCallID, p.Name, p.Content))
			}
		}
		out = append(out, string(msg.Role)+": "+strings.Join(parts, " | "))
	}
	return out
}

// dispatch validates every request of the turn before running any of them,
// then executes them sequentially or concurrently. The returned slice is in
// request order either way.
func (l *ToolLoop) dispatch(ctx context.Context, requests []llms.ToolCall) ([]*pendingCall, error) {
	pending := make([]*pendingCall, 0, len(requests))
	for _, req := range requests {
		pc, err := l.prepare(ctx, req)
		if err != nil {
			return nil, err
		}
		pending = append(pending, pc)
	}

	if !l.ParallelTools || len(pending) == 1 {
		for _, pc := range pending {
			if err := l.execute(ctx, pc); err != nil {
				return nil, err
			}
		}
		return pending, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, pc := range pending {
		g.Go(func() error {
			return l.execute(gctx, pc)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pending, nil
}

func (l *ToolLoop) prepare(ctx context.Context, req llms.ToolCall) (*pendingCall, error) {
	if req.FunctionCall == nil {
		return nil, fmt.Errorf("%w: tool call %q has no function", tools.ErrUnknownTool, req.ID)
	}
	name := req.FunctionCall.Name
	tool, err := l.Registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(req.FunctionCall.Arguments)
	if raw == "" {
		raw = "{}"
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return nil, fmt.Errorf("%w: %s: %q", ErrInvalidToolArguments, name, req.FunctionCall.Arguments)
	}

	if l.Policy != nil {
		taskID := observability.TaskID(ctx)
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		decision, err := l.Policy.Evaluate(ctx, governance.Request{
			Tool:      name,
			CallID:    req.ID,
			Arguments: raw,
			Keys:      keys,
			TaskID:    taskID,
		})
		if err != nil {
			return nil, fmt.Errorf("policy check for %s: %w", name, err)
		}
		l.Logger.LogPolicyCheck(taskID, name, string(decision.Effect), decision.Reason)
		if decision.Effect == governance.EffectDeny {
			return nil, fmt.Errorf("%w: %s", ErrToolDenied, decision.Reason)
		}
	}

	return &pendingCall{request: req, tool: tool, input: raw, args: args}, nil
}

func (l *ToolLoop) execute(ctx context.Context, pc *pendingCall) error {
	taskID := observability.TaskID(ctx)
	name := pc.tool.Name()
	l.Logger.LogToolCall(taskID, name, pc.input)

	if l.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.CallTimeout)
		defer cancel()
	}
	result, err := pc.tool.Execute(ctx, pc.input)
	if err != nil {
		if errors.Is(err, fault.ErrToolExecution) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", fault.ErrToolExecution, name, err)
	}
	pc.result = result
	l.Logger.LogToolResult(taskID, name, result)
	return nil
}
