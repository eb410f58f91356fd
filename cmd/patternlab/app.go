package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/tmc/langchaingo/vectorstores/pinecone"

	"github.com/rahul/patternlab/internal/agent"
	"github.com/rahul/patternlab/internal/gateway"
	"github.com/rahul/patternlab/internal/governance"
	"github.com/rahul/patternlab/internal/llm"
	"github.com/rahul/patternlab/internal/observability"
	"github.com/rahul/patternlab/internal/prompts"
	"github.com/rahul/patternlab/internal/rag"
	"github.com/rahul/patternlab/internal/store"
	"github.com/rahul/patternlab/internal/tools"
	"github.com/rahul/patternlab/pkg/config"
)

// app holds everything one command needs: the loaded config, the logger and
// the wired engines.
type app struct {
	cfg      *config.Config
	logger   *observability.Logger
	services gateway.Services
	closers  []func() error
}

// Close runs the closers in reverse order of creation. It is safe to call
// more than once.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newApp wires every engine from the config at configPath. Resources are
// released again when a later step fails.
func newApp(configPath string) (_ *app, err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	handler := observability.NewHandler(os.Stderr, cfg.App.LogFormat, observability.ParseLevel(cfg.App.LogLevel))
	logger := observability.NewLogger(handler, cfg.App.LLMLogPath)
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			if cerr := a.Close(); cerr != nil {
				logger.Slog().Warn("cleanup after failed startup", "error", cerr)
			}
		}
	}()

	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		return nil, errors.New("no enabled provider found in config (set OPENAI_API_KEY or providers.*.enabled)")
	}
	model, err := llm.NewProvider(pName, pCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", pName, err)
	}
	embedder, err := llm.NewEmbedder(model)
	if err != nil {
		return nil, err
	}

	vs, closeStore, err := newVectorStore(cfg.RAG, embedder)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	pm, err := prompts.NewManager(cfg.Agent.PromptsDir)
	if err != nil {
		return nil, err
	}
	registry, err := newRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}
	policy, err := governance.FromRules(cfg.Tools.Policy.DeniedTools, cfg.Tools.Policy.DeniedArgumentKeys, cfg.Tools.Policy.DeniedArguments)
	if err != nil {
		return nil, err
	}

	ac := cfg.Agent
	summarizer := agent.NewSummarizer(model, pm, logger, ac.Temperature, ac.CallTimeout)
	summarizer.ModelName = pCfg.Model
	summarizer.MaxContextTokens = ac.MaxContextTokens

	toolLoop := agent.NewToolLoop(model, registry, policy, pm, logger)
	toolLoop.MaxTurns = ac.MaxToolTurns
	toolLoop.CallTimeout = ac.CallTimeout
	toolLoop.ParallelTools = ac.ParallelTools

	a.services = gateway.Services{
		Agent: agent.New(
			agent.NewPlanner(model, pm, logger, ac.Temperature, ac.CallTimeout),
			agent.NewExecutor(model, pm, logger, ac.MaxSteps, ac.Temperature, ac.CallTimeout),
			summarizer,
			logger,
		),
		Tools:     toolLoop,
		Assistant: agent.NewAssistant(model, pm, logger, ac.CallTimeout),
	}
	if vs != nil {
		svc := rag.NewService(vs, model, pm, logger)
		svc.Splitter = rag.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
		svc.TopK = cfg.RAG.TopK
		svc.CallTimeout = ac.CallTimeout
		a.services.RAG = svc
	}

	logger.Slog().Debug("app ready", "provider", pName, "model", pCfg.Model, "tools", registry.Len(), "rag_store", cfg.RAG.Store)
	return a, nil
}

func newRegistry(cfg *config.Config, logger *observability.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry()

	w := cfg.Tools.Weather
	var backend tools.SearchBackend
	switch cfg.Tools.Search.Backend {
	case "static":
		backend = tools.NewStaticBackend()
	case "duckduckgo":
		ddg, err := tools.NewDuckDuckGoBackend(cfg.Tools.Search.MaxResults)
		if err != nil {
			return nil, err
		}
		backend = ddg
	default:
		return nil, fmt.Errorf("unknown search backend %q", cfg.Tools.Search.Backend)
	}

	for _, t := range []tools.Tool{
		tools.NewCalculatorTool(),
		tools.NewWeatherTool(w.APIKey, w.BaseURL, w.Timeout, logger.Slog()),
		tools.NewSearchTool(backend, cfg.Tools.Search.MaxResults),
	} {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// newVectorStore returns the configured store, or nil when retrieval is
// disabled.
func newVectorStore(rc config.RAGConfig, embedder embeddings.Embedder) (vectorstores.VectorStore, func() error, error) {
	switch rc.Store {
	case "none":
		return nil, nil, nil
	case "sqlite":
		vs, err := store.Open(rc.SQLitePath, embedder, "")
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite vector store: %w", err)
		}
		return vs, vs.Close, nil
	case "pinecone":
		pc := rc.Pinecone
		if pc.Host == "" || pc.APIKey == "" {
			return nil, nil, errors.New("pinecone store needs rag.pinecone.host and an api key")
		}
		ps, err := pinecone.New(
			pinecone.WithHost(pc.Host),
			pinecone.WithAPIKey(pc.APIKey),
			pinecone.WithEmbedder(embedder),
			pinecone.WithNameSpace(pc.Namespace),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("pinecone vector store: %w", err)
		}
		return &ps, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown rag store %q", rc.Store)
}
