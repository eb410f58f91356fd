package llmtest

import (
	"context"
	"strings"
	"sync"
)

// KeywordEmbedder embeds text as keyword counts over a fixed vocabulary, so
// texts sharing words land close together.
type KeywordEmbedder struct {
	Vocabulary []string
	Err        error

	mu      sync.Mutex
	queries []string
}

func NewKeywordEmbedder(vocabulary ...string) *KeywordEmbedder {
	return &KeywordEmbedder{Vocabulary: vocabulary}
}

func (e *KeywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *KeywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.queries = append(e.queries, text)
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	return e.embed(text), nil
}

// Queries returns the texts passed to EmbedQuery.
func (e *KeywordEmbedder) Queries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.queries...)
}

func (e *KeywordEmbedder) embed(text string) []float32 {
	v := make([]float32, len(e.Vocabulary))
	lower := strings.ToLower(text)
	for i, word := range e.Vocabulary {
		v[i] = float32(strings.Count(lower, strings.ToLower(word)))
	}
	return v
}
