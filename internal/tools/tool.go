package tools

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/patternlab/internal/fault"
)

// Tool defines the interface for all model-callable capabilities.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

// ID enumerates the tools the dispatch table accepts.
type ID string

const (
	Calculator ID = "calculator"
	Weather    ID = "weather"
	Search     ID = "search"
)

var knownIDs = []ID{Calculator, Weather, Search}

// ErrUnknownTool is returned for any name outside the enumeration, or for a
// known id with no registered implementation.
var ErrUnknownTool = fmt.Errorf("%w: unknown tool", fault.ErrToolExecution)

// ParseID maps a model-supplied name to an enumerated id.
func ParseID(name string) (ID, error) {
	for _, id := range knownIDs {
		if string(id) == name {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownTool, name)
}

// Registry is the dispatch table. It is filled once at startup and shared
// read-only between requests.
type Registry struct {
	tools map[ID]Tool
	order []ID
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[ID]Tool),
	}
}

// Register adds t under its enumerated id. Tools whose name is not an
// enumerated id are rejected.
func (r *Registry) Register(t Tool) error {
	id, err := ParseID(t.Name())
	if err != nil {
		return err
	}
	if _, exists := r.tools[id]; !exists {
		r.order = append(r.order, id)
	}
	r.tools[id] = t
	return nil
}

// Lookup resolves a model-supplied name to its tool.
func (r *Registry) Lookup(name string) (Tool, error) {
	id, err := ParseID(name)
	if err != nil {
		return nil, err
	}
	t, ok := r.tools[id]
	if !ok {
		return nil, fmt.Errorf("%w %q: not registered", ErrUnknownTool, name)
	}
	return t, nil
}

// Len reports how many tools are registered.
func (r *Registry) Len() int {
	return len(r.order)
}

// Definitions returns the tool declarations in registration order.
func (r *Registry) Definitions() []llms.Tool {
	defs := make([]llms.Tool, 0, len(r.order))
	for _, id := range r.order {
		t := r.tools[id]
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

func stringParam(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

func objectSchema(required string, properties map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   []string{required},
	}
}
