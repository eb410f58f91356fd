// Package rag answers questions from uploaded documents: ingestion splits and
// embeds text into a vector store, queries retrieve the closest chunks and
// pass them to the model as context.
package rag

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/rahul/patternlab/internal/fault"
	"github.com/rahul/patternlab/internal/llm"
	"github.com/rahul/patternlab/internal/observability"
	"github.com/rahul/patternlab/internal/prompts"
	"github.com/rahul/patternlab/internal/store"
)

var (
	ErrEmptyDocument = fmt.Errorf("%w: no file provided or file is empty", fault.ErrInput)
	ErrEmptyQuery    = fmt.Errorf("%w: query is required", fault.ErrInput)
	ErrInvalidURL    = fmt.Errorf("%w: url must be an absolute http(s) URL", fault.ErrInput)
)

const (
	DefaultTopK         = 3
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 0
)

// Service ingests documents into Store and answers queries against it.
type Service struct {
	Store       vectorstores.VectorStore
	Model       llm.Model
	Prompts     *prompts.Manager
	Logger      *observability.Logger
	Splitter    textsplitter.TextSplitter
	TopK        int
	CallTimeout time.Duration
	HTTPClient  *http.Client
}

// NewSplitter splits on paragraphs first, then lines, then words.
func NewSplitter(chunkSize, chunkOverlap int) textsplitter.RecursiveCharacter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
	}
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
}

func NewService(vs vectorstores.VectorStore, model llm.Model, pm *prompts.Manager, logger *observability.Logger) *Service {
	return &Service{
		Store:    vs,
		Model:    model,
		Prompts:  pm,
		Logger:   logger,
		Splitter: NewSplitter(DefaultChunkSize, DefaultChunkOverlap),
		TopK:     DefaultTopK,
	}
}

// Ingest extracts, chunks and stores doc, returning the number of chunks
// written.
func (s *Service) Ingest(ctx context.Context, doc Document) (int, error) {
	if len(strings.TrimSpace(string(doc.Body))) == 0 {
		return 0, ErrEmptyDocument
	}
	text, err := extractText(doc)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, ErrEmptyDocument
	}

	chunks, err := s.Splitter.SplitText(text)
	if err != nil {
		return 0, fmt.Errorf("split %s: %w", doc.Name, err)
	}
	docs := make([]schema.Document, 0, len(chunks))
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		docs = append(docs, schema.Document{
			PageContent: chunk,
			Metadata:    map[string]any{"text": chunk, "source": doc.Name},
		})
	}
	if len(docs) == 0 {
		return 0, ErrEmptyDocument
	}

	if _, err := s.Store.AddDocuments(ctx, docs); err != nil {
		s.Logger.LogError(observability.TaskID(ctx), "ingest", err)
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	s.Logger.Slog().Info("document ingested", "source", doc.Name, "chunks", len(docs))
	return len(docs), nil
}

// IngestURL fetches a web page and ingests its article text.
func (s *Service) IngestURL(ctx context.Context, rawURL string) (int, error) {
	doc, err := fetch(ctx, s.HTTPClient, strings.TrimSpace(rawURL))
	if err != nil {
		return 0, err
	}
	return s.Ingest(ctx, doc)
}

// Query answers query from the top matching chunks. When nothing relevant is
// stored the model is asked to say so instead.
func (s *Service) Query(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", ErrEmptyQuery
	}
	taskID := observability.TaskID(ctx)
	topK := s.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	matches, err := s.Store.SimilaritySearch(ctx, query, topK)
	if err != nil {
		s.Logger.LogError(taskID, "retrieve", err)
		return "", fmt.Errorf("similarity search: %w", err)
	}
	s.Logger.LogRetrieval(taskID, query, len(matches))

	var texts []string
	for _, m := range matches {
		text, _ := m.Metadata["text"].(string)
		if text == "" {
			text = m.PageContent
		}
		if text != "" {
			texts = append(texts, text)
		}
	}
	contextText := strings.Join(texts, "\n\n")

	var (
		system, prompt string
		options        []llms.CallOption
	)
	if len(matches) == 0 || strings.TrimSpace(contextText) == "" {
		system = s.Prompts.Get(prompts.RAGEmpty)
		prompt = fmt.Sprintf("Regarding your question: \"%s\"\n\nI could not find relevant information in the uploaded document to provide an answer.", query)
		options = []llms.CallOption{llms.WithTemperature(0.5), llms.WithMaxTokens(150)}
	} else {
		system = s.Prompts.Get(prompts.RAG)
		prompt = fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, query)
		options = []llms.CallOption{llms.WithTemperature(0.7), llms.WithMaxTokens(500)}
	}

	choice, err := llm.Generate(ctx, s.Model, s.CallTimeout, llm.Conversation(system, prompt), options...)
	if err != nil {
		s.Logger.LogError(taskID, "rag_answer", err)
		return "", fmt.Errorf("answer: %w", err)
	}
	s.Logger.LogLLM(taskID, "rag", prompt, choice.Content, nil)
	return choice.Content, nil
}

// SafeMessage maps a query failure to text that can be shown to a caller.
func SafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, fault.ErrInput) {
		return fault.Message(err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key"):
		return "API configuration error. Please check your API keys and server logs."
	case strings.Contains(msg, "index") && (strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")):
		return "Pinecone index not found. Please ensure a document has been successfully uploaded and processed."
	case errors.Is(err, store.ErrDimensionMismatch), strings.Contains(msg, "dimensionality mismatch"), strings.Contains(msg, "dimension mismatch"):
		return "There was a technical issue with the document embeddings. Try re-uploading the document."
	case errors.Is(err, context.DeadlineExceeded):
		return fault.Message(err)
	}
	return "Failed to process query. Please check server logs."
}
