// Package llm is the seam between the engines and the completion provider.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/patternlab/internal/fault"
)

// Model is the part of llms.Model the engines use.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

var _ Model = (llms.Model)(nil)

// ErrNoChoices is returned when a provider response carries no choices.
var ErrNoChoices = fmt.Errorf("%w: response has no choices", fault.ErrUpstreamProtocol)

// FirstChoice returns the first choice of resp.
func FirstChoice(resp *llms.ContentResponse) (*llms.ContentChoice, error) {
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, ErrNoChoices
	}
	return resp.Choices[0], nil
}

// Generate issues one call bounded by timeout (no bound when timeout <= 0)
// and returns the first choice.
func Generate(ctx context.Context, model Model, timeout time.Duration, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentChoice, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := model.GenerateContent(ctx, messages, options...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, errors.Join(ctxErr, err)
		}
		return nil, err
	}
	return FirstChoice(resp)
}

// Conversation starts a message list with a system and a human message.
// A blank system prompt is skipped.
func Conversation(system, user string) []llms.MessageContent {
	var messages []llms.MessageContent
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	return append(messages, llms.TextParts(llms.ChatMessageTypeHuman, user))
}
