package llm

import (
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/patternlab/pkg/config"
)

// NewProvider builds the completion client for the named provider.
func NewProvider(name string, cfg config.ProviderConfig, httpClient *http.Client) (*openai.LLM, error) {
	switch name {
	case "openai", "openrouter":
	default:
		return nil, fmt.Errorf("provider %s not yet implemented", name)
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.EmbeddingModel != "" {
		opts = append(opts, openai.WithEmbeddingModel(cfg.EmbeddingModel))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, openai.WithHTTPClient(httpClient))
	}
	return openai.New(opts...)
}

// NewEmbedder wraps a provider client that can create embeddings.
func NewEmbedder(client embeddings.EmbedderClient) (embeddings.Embedder, error) {
	e, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("new embedder: %w", err)
	}
	return e, nil
}
