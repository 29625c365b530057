package agent

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// ToolFunc executes one tool call. Args is the raw JSON argument object
// from the model; the return value is handed back to the model verbatim.
type ToolFunc func(ctx context.Context, args json.RawMessage) (string, error)

// Tool is a named capability the engine may offer to the model.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON schema of the argument object.
	Parameters map[string]any
	Run        ToolFunc
}

// Registry holds the tools for one engine. Registration order is
// preserved so the definitions sent to the model are stable.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds or replaces a tool. Replacing keeps the original position.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return errors.New("tool name is empty")
	}
	if t.Run == nil {
		return errors.Errorf("tool %s has no run function", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; !ok {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// OpenAITools exports the registry as chat-completion function definitions.
func (r *Registry) OpenAITools() []openai.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]openai.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		params := t.Parameters
		if params == nil {
			params = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []string{},
			}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
