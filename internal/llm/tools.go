package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Tool is a function the model may call during a conversation.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  *JSONSchema `json:"parameters"`
	Handler     ToolHandler `json:"-"`
}

// ToolHandler executes a tool call and returns its textual result.
type ToolHandler func(ctx context.Context, args json.RawMessage) (string, error)

// JSONSchema is the subset of JSON Schema used for tool parameters.
type JSONSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
	Default     any                    `json:"default,omitempty"`
}

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(desc string, props map[string]*JSONSchema, required ...string) *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: desc,
		Properties:  props,
		Required:    required,
	}
}

// StringProp creates a string property.
func StringProp(desc string) *JSONSchema {
	return &JSONSchema{Type: "string", Description: desc}
}

// IntProp creates an integer property.
func IntProp(desc string) *JSONSchema {
	return &JSONSchema{Type: "integer", Description: desc}
}

// EnumProp creates a string property restricted to values.
func EnumProp(desc string, values ...string) *JSONSchema {
	return &JSONSchema{Type: "string", Description: desc, Enum: values}
}

// ToolRegistry holds the tools available to an agent. Tools are listed in
// registration order so the request payload is stable.
type ToolRegistry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any tool with the same name.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; !exists {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = tool
}

// Get retrieves a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the registered tools in registration order.
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns tool names in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a single tool call.
func (r *ToolRegistry) Execute(ctx context.Context, call ToolCall) (string, error) {
	tool, ok := r.Get(call.Name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	}
	if tool.Handler == nil {
		return "", fmt.Errorf("llm: tool %q has no handler", call.Name)
	}
	return tool.Handler(ctx, call.Arguments)
}

// ExecuteAll runs the calls one after another, in order.
func (r *ToolRegistry) ExecuteAll(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, c := range calls {
		output, err := r.Execute(ctx, c)
		results = append(results, ToolResult{
			ToolCallID: c.ID,
			Name:       c.Name,
			Content:    output,
			Err:        err,
		})
	}
	return results
}

// ToolResult is the outcome of one tool call.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	Err        error  `json:"error,omitempty"`
}

// ToMessage converts the result into a tool message for the model.
// Handler errors are reported to the model rather than aborting the loop.
func (tr ToolResult) ToMessage() Message {
	content := tr.Content
	if tr.Err != nil {
		content = fmt.Sprintf("Error executing tool %s: %v", tr.Name, tr.Err)
	}
	return ToolResultMessage(tr.ToolCallID, tr.Name, content)
}

// ToolObserver is notified of each executed tool call.
type ToolObserver func(call ToolCall, result ToolResult)

// LoopConfig controls RunToolLoop.
type LoopConfig struct {
	MaxIterations int
	Options       *ChatOptions
	OnTool        ToolObserver
}

// RunToolLoop sends messages to provider, executes any requested tool
// calls, feeds their results back and repeats until the model answers
// with text. The returned Response carries token usage summed over every
// round trip. Nothing is retried: a provider error ends the loop.
func RunToolLoop(ctx context.Context, provider LLMProvider, registry *ToolRegistry,
	messages []Message, cfg LoopConfig) (*Response, []Message, error) {

	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 5
	}

	msgs := make([]Message, len(messages))
	copy(msgs, messages)

	var tools []Tool
	if registry != nil {
		tools = registry.List()
	}

	var total Usage
	for i := 0; i < maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, msgs, err
		}
		resp, err := provider.Chat(ctx, msgs, tools, cfg.Options)
		if err != nil {
			return nil, msgs, err
		}
		total.Add(resp.Usage)

		if !resp.HasToolCalls() {
			resp.Usage = total
			return resp, msgs, nil
		}
		if registry == nil {
			return nil, msgs, fmt.Errorf("%w: %s", ErrToolNotFound, resp.ToolCalls[0].Name)
		}

		msgs = append(msgs, AssistantToolCallMessage(resp.Content, resp.ToolCalls))
		for j, result := range registry.ExecuteAll(ctx, resp.ToolCalls) {
			if cfg.OnTool != nil {
				cfg.OnTool(resp.ToolCalls[j], result)
			}
			msgs = append(msgs, result.ToMessage())
		}
	}

	return nil, msgs, fmt.Errorf("%w after %d iterations", ErrToolLoop, maxIterations)
}
