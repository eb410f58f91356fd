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

// TokenCounter estimates how many tokens text takes for model.
type TokenCounter func(model, text string) int

// Summarizer turns a rendered execution log into the final answer.
type Summarizer struct {
	Model       llm.Model
	Prompts     *prompts.Manager
	Logger      *observability.Logger
	Temperature float64
	CallTimeout time.Duration

	// ModelName selects the tokenizer; MaxContextTokens <= 0 disables the
	// size check.
	ModelName        string
	MaxContextTokens int
	CountTokens      TokenCounter
}

func NewSummarizer(model llm.Model, pm *prompts.Manager, logger *observability.Logger, temperature float64, callTimeout time.Duration) *Summarizer {
	return &Summarizer{
		Model:       model,
		Prompts:     pm,
		Logger:      logger,
		Temperature: temperature,
		CallTimeout: callTimeout,
		CountTokens: llms.CountTokens,
	}
}

// Summarize issues a single completion over the task and transcript.
func (s *Summarizer) Summarize(ctx context.Context, task, transcript string) (string, error) {
	taskID := observability.TaskID(ctx)
	system := s.Prompts.Get(prompts.Summarizer)
	prompt := fmt.Sprintf("Task: %s\nExecution results:\n%s\n\nProvide a final summary of the results.", task, transcript)

	if s.MaxContextTokens > 0 && s.CountTokens != nil {
		if n := s.CountTokens(s.ModelName, system+prompt); n > s.MaxContextTokens {
			return "", fmt.Errorf("%w: %d tokens, limit %d", ErrContextTooLarge, n, s.MaxContextTokens)
		}
	}

	choice, err := llm.Generate(ctx, s.Model, s.CallTimeout,
		llm.Conversation(system, prompt),
		llms.WithTemperature(s.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("summary call: %w", err)
	}
	s.Logger.LogLLM(taskID, "summarize", prompt, choice.Content, nil)

	if strings.TrimSpace(choice.Content) == "" {
		return "", ErrEmptySummary
	}
	s.Logger.LogSummary(taskID, len(choice.Content))
	return choice.Content, nil
}
