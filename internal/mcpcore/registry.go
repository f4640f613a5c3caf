package mcpcore

import (
	"context"
	"encoding/json"
)

// ToolAnnotations carries MCP client-facing hints about a tool's behavior.
type ToolAnnotations struct {
	Title           string `json:"title,omitempty"`
	ReadOnlyHint    bool   `json:"readOnlyHint,omitempty"`
	DestructiveHint bool   `json:"destructiveHint,omitempty"`
	IdempotentHint  bool   `json:"idempotentHint,omitempty"`
	OpenWorldHint   bool   `json:"openWorldHint,omitempty"`
}

// ToolHandler implements a single tool's behavior. args is the
// already-normalized, schema-valid argument object. progress may be nil
// if the caller supplied no `_meta.progressToken`.
type ToolHandler func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error)

// ProgressFunc reports incremental progress for a long-running tool call,
// translated by the core into a `notifications/progress` message.
type ProgressFunc func(value float64, message string)

// Normalizer rewrites a loosely-shaped argument payload into the tool's
// schema-typed shape (§4.7 "Loose-argument normalization"). It is called
// only when the raw arguments don't already validate against the schema.
type Normalizer func(raw map[string]any) map[string]any

// Tool is a single registered MCP tool.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	Annotations ToolAnnotations
	AlwaysOn    bool
	Normalize   Normalizer
	Handler     ToolHandler
}

// Prompt is a single registered MCP prompt template.
type Prompt struct {
	Name        string
	Description string
	Arguments   []PromptArgument
	Render      func(ctx context.Context, args map[string]string) (string, error)
}

// PromptArgument describes one named argument a prompt accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Resource is a single registered MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MIMEType    string
	Read        func(ctx context.Context, uri string) (string, string, error) // returns (contents, mimeType, error)
}

// Registry holds the immutable, startup-initialized tool/prompt/resource
// tables (§5 "Shared resources": registries are immutable during request
// handling; hot updates would require a listChanged notification, which
// this server never emits since its catalog is static).
type Registry struct {
	tools     map[string]*Tool
	toolOrder []string
	prompts   map[string]*Prompt
	resources map[string]*Resource
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]*Tool),
		prompts:   make(map[string]*Prompt),
		resources: make(map[string]*Resource),
	}
}

// RegisterTool adds a tool to the registry.
func (r *Registry) RegisterTool(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.toolOrder = append(r.toolOrder, t.Name)
	}
	r.tools[t.Name] = t
}

// RegisterPrompt adds a prompt to the registry.
func (r *Registry) RegisterPrompt(p *Prompt) {
	r.prompts[p.Name] = p
}

// RegisterResource adds a resource to the registry.
func (r *Registry) RegisterResource(res *Resource) {
	r.resources[res.URI] = res
}

// Tool looks up a tool by name.
func (r *Registry) Tool(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns every registered tool in registration order.
func (r *Registry) Tools() []*Tool {
	out := make([]*Tool, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		out = append(out, r.tools[name])
	}
	return out
}

// Prompt looks up a prompt by name.
func (r *Registry) Prompt(name string) (*Prompt, bool) {
	p, ok := r.prompts[name]
	return p, ok
}

// Prompts returns every registered prompt.
func (r *Registry) Prompts() []*Prompt {
	out := make([]*Prompt, 0, len(r.prompts))
	for _, p := range r.prompts {
		out = append(out, p)
	}
	return out
}

// Resource looks up a resource by URI.
func (r *Registry) Resource(uri string) (*Resource, bool) {
	res, ok := r.resources[uri]
	return res, ok
}

// Resources returns every registered resource.
func (r *Registry) Resources() []*Resource {
	out := make([]*Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	return out
}

// toolJSON renders a Tool's client-facing tools/list entry.
func toolJSON(t *Tool) map[string]any {
	return map[string]any{
		"name":        t.Name,
		"description": t.Description,
		"inputSchema": t.Schema,
		"annotations": t.Annotations,
	}
}

// MarshalSchema is a small helper for tools that build their schema from
// a Go value during registration rather than a literal map.
func MarshalSchema(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}
