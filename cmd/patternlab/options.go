package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/rahul/patternlab/internal/gateway"
	"github.com/rahul/patternlab/internal/observability"
	"github.com/rahul/patternlab/internal/rag"
)

// Options is the root command. The struct tags are interpreted by
// github.com/jessevdk/go-flags.
type Options struct {
	Config string `short:"f" long:"config" description:"config YAML/JSON path"`

	Serve  ServeCmd  `command:"serve" description:"Start the HTTP API (and the Telegram gateway when enabled)"`
	Agent  AgentCmd  `command:"agent" description:"Plan, execute and summarize a task"`
	Tools  ToolsCmd  `command:"tools" description:"Answer a prompt with the calculator, weather and search tools"`
	Ask    AskCmd    `command:"ask" description:"Answer a prompt with a single completion"`
	RAG    RAGCmd    `command:"rag" description:"Ask a question about ingested documents"`
	Ingest IngestCmd `command:"ingest" description:"Ingest a file or web page for retrieval"`

	out io.Writer
}

// newParser wires every sub-command back to opts so Execute can reach the
// global flags.
func newParser(opts *Options, out io.Writer) *flags.Parser {
	opts.out = out
	opts.Serve.root = opts
	opts.Agent.root = opts
	opts.Tools.root = opts
	opts.Ask.root = opts
	opts.RAG.root = opts
	opts.Ingest.root = opts
	return flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
}

func joinArgs(args []string, what string) (string, error) {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return "", fmt.Errorf("%s is required", what)
	}
	return text, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type ServeCmd struct {
	Addr       string `short:"a" long:"addr" description:"listen address, overrides app.addr"`
	NoTelegram bool   `long:"no-telegram" description:"do not start the Telegram gateway"`

	root *Options
}

func (c *ServeCmd) Execute(_ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(c.root.Config)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.App.Addr
	if c.Addr != "" {
		addr = c.Addr
	}
	log := a.logger.Slog()

	if tgCfg, ok := a.cfg.GetTelegramConfig(); ok && !c.NoTelegram {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, a.services, a.logger)
		if err != nil {
			return fmt.Errorf("telegram gateway: %w", err)
		}
		go func() {
			if err := tg.Start(ctx); err != nil {
				log.Error("telegram gateway stopped", "error", err)
				stop()
			}
		}()
		defer tg.Stop()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           gateway.NewRouter(a.services, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	observability.PrintBanner(c.root.out, a.cfg.App.Name, addr, gateway.Routes(a.services))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type AgentCmd struct {
	root *Options
}

func (c *AgentCmd) Execute(args []string) error {
	task, err := joinArgs(args, "task")
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(c.root.Config)
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.services.Agent.Run(ctx, task)
	if err != nil {
		return err
	}
	return printJSON(c.root.out, outcome)
}

type ToolsCmd struct {
	root *Options
}

func (c *ToolsCmd) Execute(args []string) error {
	prompt, err := joinArgs(args, "prompt")
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(c.root.Config)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.services.Tools.Run(ctx, prompt)
	if err != nil {
		return err
	}
	return printJSON(c.root.out, result)
}

type AskCmd struct {
	root *Options
}

func (c *AskCmd) Execute(args []string) error {
	prompt, err := joinArgs(args, "prompt")
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(c.root.Config)
	if err != nil {
		return err
	}
	defer a.Close()

	response, err := a.services.Assistant.Respond(ctx, prompt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.root.out, response)
	return err
}

type RAGCmd struct {
	root *Options
}

func (c *RAGCmd) Execute(args []string) error {
	query, err := joinArgs(args, "query")
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(c.root.Config)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.services.RAG == nil {
		return errors.New("rag store is disabled")
	}
	response, err := a.services.RAG.Query(ctx, query)
	if err != nil {
		return errors.New(rag.SafeMessage(err))
	}
	_, err = fmt.Fprintln(c.root.out, response)
	return err
}

type IngestCmd struct {
	Args struct {
		Source string `positional-arg-name:"file-or-url" required:"yes"`
	} `positional-args:"yes"`

	root *Options
}

func (c *IngestCmd) Execute(_ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(c.root.Config)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.services.RAG == nil {
		return errors.New("rag store is disabled")
	}

	source := c.Args.Source
	var chunks int
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		chunks, err = a.services.RAG.IngestURL(ctx, source)
	} else {
		var doc rag.Document
		doc, err = readDocument(source)
		if err == nil {
			chunks, err = a.services.RAG.Ingest(ctx, doc)
		}
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.root.out, "ingested %s: %d chunks\n", source, chunks)
	return err
}

func readDocument(path string) (rag.Document, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return rag.Document{}, err
	}
	return rag.Document{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Body:        body,
	}, nil
}
