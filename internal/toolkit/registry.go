package toolkit

import (
	"fmt"
	"sort"
	"sync"

	"github.com/turnforge/agentcore/internal/protocol"
)

// Registry keys tools by name. Registration rejects name collisions, per
// spec: "Tools are keyed by name within a ToolRegistry; name collisions are
// rejected at registration."
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Returns an error if a tool with the same name is
// already registered.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Spec().Name
	if name == "" {
		return fmt.Errorf("toolkit: tool spec has empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("toolkit: tool %q already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Replace overwrites any existing registration for the tool's name. Used by
// MCP reload (C10) to atomically swap a server's tools without touching
// unrelated entries.
func (r *Registry) Replace(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Spec().Name] = tool
}

// Unregister removes a tool by name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools, sorted by name for deterministic
// iteration (matters for rollout snapshotting and tests).
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Spec().Name < out[j].Spec().Name })
	return out
}

// Specs returns the ToolSpec for every registered tool, in the shape sent
// to the provider with each request.
func (r *Registry) Specs() []protocol.ToolSpec {
	tools := r.List()
	specs := make([]protocol.ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, t.Spec())
	}
	return specs
}

// Names returns the sorted set of registered tool names.
func (r *Registry) Names() []string {
	tools := r.List()
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Spec().Name)
	}
	return names
}
