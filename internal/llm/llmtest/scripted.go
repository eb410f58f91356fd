// Package llmtest provides a deterministic model for engine tests.
package llmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Response configures one model turn in a scripted sequence.
type Response struct {
	Choice *llms.ContentChoice
	Err    error
}

// Call records one request the model received.
type Call struct {
	Messages []llms.MessageContent
	Options  llms.CallOptions
}

// ScriptedModel answers calls from a fixed script and records every request.
type ScriptedModel struct {
	mu        sync.Mutex
	index     int
	responses []Response
	calls     []Call
}

func NewScriptedModel(responses ...Response) *ScriptedModel {
	cloned := make([]Response, len(responses))
	copy(cloned, responses)
	return &ScriptedModel{responses: cloned}
}

func (m *ScriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}
	recorded := make([]llms.MessageContent, len(messages))
	copy(recorded, messages)
	m.calls = append(m.calls, Call{Messages: recorded, Options: opts})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.index >= len(m.responses) {
		return nil, fmt.Errorf("script exhausted at call %d", m.index+1)
	}
	current := m.responses[m.index]
	m.index++
	if current.Err != nil {
		return nil, current.Err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{current.Choice}}, nil
}

// Calls returns the recorded requests in order.
func (m *ScriptedModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Text is a turn that answers with plain content.
func Text(content string) Response {
	return Response{Choice: &llms.ContentChoice{Content: content}}
}

// ToolCalls is a turn that requests the given tool calls.
func ToolCalls(calls ...llms.ToolCall) Response {
	return Response{Choice: &llms.ContentChoice{ToolCalls: calls}}
}

// Fail is a turn that returns err.
func Fail(err error) Response {
	return Response{Err: err}
}

// FunctionCall builds a tool call request.
func FunctionCall(id, name, arguments string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}

// MessageText concatenates the text parts of msg.
func MessageText(msg llms.MessageContent) string {
	var b strings.Builder
	for _, part := range msg.Parts {
		if text, ok := part.(llms.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}

// LastUserText returns the text of the last human message in call.
func (c Call) LastUserText() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == llms.ChatMessageTypeHuman {
			return MessageText(c.Messages[i])
		}
	}
	return ""
}
