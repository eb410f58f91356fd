package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Kind names one system prompt.
type Kind string

const (
	Planner    Kind = "planner"
	Executor   Kind = "executor"
	Summarizer Kind = "summarizer"
	Tools      Kind = "tools"
	Basic      Kind = "basic"
	RAG        Kind = "rag"
	RAGEmpty   Kind = "rag_empty"
)

// identityFile, when present, is prepended to every prompt.
const identityFile = "identity.md"

var defaults = map[Kind]string{
	Planner:    "You are a task planning assistant. Break down the given task into exactly 2 clear, sequential steps. Use the 'define_two_step_plan' tool to structure your response. Each step should be actionable and specific.",
	Executor:   "You are a task execution assistant. Execute the given step and provide a clear result. Use any previous context if provided.",
	Summarizer: "You are a summarization assistant. Create a clear and concise summary of the task execution results.",
	Tools:      "You are a helpful assistant that can use tools to accomplish tasks.",
	Basic:      "You are a helpful assistant that provides clear and concise responses.",
	RAG:        "You are a helpful assistant that answers questions based on the provided context. If the answer cannot be found in the context, explicitly state that based on the information you have.",
	RAGEmpty:   "You are a helpful assistant. The user asked a question, but no relevant information was found in the document. Please inform the user of this.",
}

// Manager holds the system prompts. They are read once and shared
// read-only afterwards.
type Manager struct {
	Directory string
	prompts   map[Kind]string
}

// NewManager loads overrides from dir (<kind>.md, plus an optional
// identity.md prefix). Missing files fall back to the built-in prompts; an
// empty dir uses the built-ins only.
func NewManager(dir string) (*Manager, error) {
	pm := &Manager{Directory: dir, prompts: make(map[Kind]string, len(defaults))}
	for kind, text := range defaults {
		pm.prompts[kind] = text
	}
	if dir == "" {
		return pm, nil
	}

	identity, err := readOptional(filepath.Join(dir, identityFile))
	if err != nil {
		return nil, err
	}

	for kind := range defaults {
		override, err := readOptional(filepath.Join(dir, string(kind)+".md"))
		if err != nil {
			return nil, err
		}
		if override != "" {
			pm.prompts[kind] = override
		}
		if identity != "" {
			pm.prompts[kind] = identity + "\n\n---\n\n" + pm.prompts[kind]
		}
	}
	return pm, nil
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Get returns the prompt for kind.
func (pm *Manager) Get(kind Kind) string {
	return pm.prompts[kind]
}
