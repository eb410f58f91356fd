package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rahul/patternlab/internal/agent"
	"github.com/rahul/patternlab/internal/fault"
	"github.com/rahul/patternlab/internal/observability"
	"github.com/rahul/patternlab/internal/rag"
)

const (
	maxRequestBodyBytes = 1 << 20
	maxUploadBytes      = 10 << 20
)

// AgentRunner runs the plan, execute and summarize pipeline.
type AgentRunner interface {
	Run(ctx context.Context, task string) (*agent.Outcome, error)
}

// ToolRunner runs the tool loop.
type ToolRunner interface {
	Run(ctx context.Context, prompt string) (*agent.ToolLoopResult, error)
}

// Responder answers a prompt directly.
type Responder interface {
	Respond(ctx context.Context, prompt string) (string, error)
}

// Retriever ingests documents and answers questions about them.
type Retriever interface {
	Ingest(ctx context.Context, doc rag.Document) (int, error)
	IngestURL(ctx context.Context, rawURL string) (int, error)
	Query(ctx context.Context, query string) (string, error)
}

// Services are the engines exposed over HTTP. A nil RAG leaves the /api/rag
// routes unregistered.
type Services struct {
	Agent     AgentRunner
	Tools     ToolRunner
	Assistant Responder
	RAG       Retriever
}

type handlers struct {
	services Services
	logger   *observability.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type taskRequest struct {
	Task string `json:"task"`
}

type queryRequest struct {
	Query string `json:"query"`
}

type textResponse struct {
	Response string `json:"response"`
}

type uploadResponse struct {
	Success bool `json:"success"`
	Chunks  int  `json:"chunks"`
}

// NewRouter registers the API routes and wraps them with request logging.
func NewRouter(services Services, logger *observability.Logger) http.Handler {
	h := &handlers{services: services, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("POST /api/basic", h.handleBasic)
	mux.HandleFunc("POST /api/agent", h.handleAgent)
	mux.HandleFunc("POST /api/tools", h.handleTools)
	if services.RAG != nil {
		mux.HandleFunc("POST /api/rag/query", h.handleRAGQuery)
		mux.HandleFunc("POST /api/rag/upload", h.handleRAGUpload)
	}
	return withRequestLogging(mux, logger.Slog())
}

// Routes lists the registered routes for the startup banner.
func Routes(services Services) []string {
	routes := []string{"POST /api/basic", "POST /api/agent", "POST /api/tools"}
	if services.RAG != nil {
		routes = append(routes, "POST /api/rag/query", "POST /api/rag/upload")
	}
	return append(routes, "GET /healthz")
}

func (h *handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleBasic(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := requestContext(r)
	response, err := h.services.Assistant.Respond(ctx, req.Prompt)
	if err != nil {
		h.writeMappedError(ctx, w, "basic", err)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Response: response})
}

func (h *handlers) handleAgent(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := requestContext(r)
	outcome, err := h.services.Agent.Run(ctx, req.Task)
	if err != nil {
		h.writeMappedError(ctx, w, "agent", err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *handlers) handleTools(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := requestContext(r)
	result, err := h.services.Tools.Run(ctx, req.Prompt)
	if err != nil {
		h.writeMappedError(ctx, w, "tools", err)
		return
	}
	if result.ToolCalls == nil {
		result.ToolCalls = []agent.ToolCall{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) handleRAGQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := requestContext(r)
	response, err := h.services.RAG.Query(ctx, req.Query)
	if err != nil {
		h.logger.LogError(observability.TaskID(ctx), "rag_query", err)
		writeError(w, fault.Status(err), rag.SafeMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Response: response})
}

// handleRAGUpload accepts a multipart "file" part, or a "url" form field to
// fetch and ingest.
func (h *handlers) handleRAGUpload(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form: %v", err))
		return
	}

	var (
		chunks int
		err    error
	)
	file, header, ferr := r.FormFile("file")
	switch {
	case ferr == nil:
		defer file.Close()
		body, rerr := io.ReadAll(file)
		if rerr != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read file: %v", rerr))
			return
		}
		chunks, err = h.services.RAG.Ingest(ctx, rag.Document{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        body,
		})
	case strings.TrimSpace(r.FormValue("url")) != "":
		chunks, err = h.services.RAG.IngestURL(ctx, r.FormValue("url"))
	default:
		err = rag.ErrEmptyDocument
	}

	if err != nil {
		h.logger.LogError(observability.TaskID(ctx), "rag_upload", err)
		message := "Failed to process document"
		if errors.Is(err, fault.ErrInput) {
			message = fault.Message(err)
		}
		writeError(w, fault.Status(err), message)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Success: true, Chunks: chunks})
}

func (h *handlers) writeMappedError(ctx context.Context, w http.ResponseWriter, stage string, err error) {
	h.logger.LogError(observability.TaskID(ctx), stage, err)
	writeError(w, fault.Status(err), fault.Message(err))
}

// requestContext tags the request with a fresh task id.
func requestContext(r *http.Request) context.Context {
	return observability.WithTaskID(r.Context(), uuid.NewString())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}

	// Unknown fields are ignored.
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain exactly one JSON object")
	}

	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withRequestLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
