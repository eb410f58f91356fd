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

// Assistant answers a prompt with a single completion and no tools.
type Assistant struct {
	Model       llm.Model
	Prompts     *prompts.Manager
	Logger      *observability.Logger
	Temperature float64
	MaxTokens   int
	CallTimeout time.Duration
}

func NewAssistant(model llm.Model, pm *prompts.Manager, logger *observability.Logger, callTimeout time.Duration) *Assistant {
	return &Assistant{
		Model:       model,
		Prompts:     pm,
		Logger:      logger,
		Temperature: 0.7,
		MaxTokens:   500,
		CallTimeout: callTimeout,
	}
}

func (a *Assistant) Respond(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	choice, err := llm.Generate(ctx, a.Model, a.CallTimeout,
		llm.Conversation(a.Prompts.Get(prompts.Basic), prompt),
		llms.WithTemperature(a.Temperature),
		llms.WithMaxTokens(a.MaxTokens),
	)
	if err != nil {
		a.Logger.LogError(observability.TaskID(ctx), "basic", err)
		return "", fmt.Errorf("completion: %w", err)
	}
	a.Logger.LogLLM(observability.TaskID(ctx), "basic", prompt, choice.Content, nil)
	return choice.Content, nil
}
