package mcp

import (
	"context"
	"strings"

	"github.com/turnforge/agentcore/internal/protocol"
	"github.com/turnforge/agentcore/internal/toolkit"
)

// adaptedTool wraps a single MCP server tool as a toolkit.Tool. MCP calls
// are treated as Mutating rather than ReadOnly: the registry has no way to
// know whether a given server tool mutates external state, and guessing
// ReadOnly risks running two MCP calls in parallel that weren't meant to
// be, so the conservative default is used (spec §4.3's registry-keyed
// concurrency-safety flag, applied here as a single fixed classification
// for every MCP tool rather than per-tool metadata the protocol doesn't
// carry).
type adaptedTool struct {
	toolkit.BaseTool
	manager *Manager
	server  string
	tool    string
	spec    protocol.ToolSpec
}

// RegisterAll installs every tool currently exposed by ready MCP servers
// into reg, replacing any previously-registered MCP tools. Call again after
// Manager.Reload to pick up the new view (toolkit.Registry.Replace is
// itself the atomic swap a concurrent tool lookup sees).
func RegisterAll(manager *Manager, reg *toolkit.Registry) {
	current := make(map[string]bool)
	for _, spec := range manager.AllTools() {
		server, tool, ok := strings.Cut(spec.Name, "/")
		if !ok {
			continue
		}
		current[spec.Name] = true
		reg.Replace(&adaptedTool{
			manager: manager,
			server:  server,
			tool:    tool,
			spec: protocol.ToolSpec{
				Name:        spec.Name,
				Description: spec.Description,
				Schema:      spec.Schema,
			},
		})
	}
	for _, t := range reg.List() {
		if _, isMCP := t.(*adaptedTool); isMCP && !current[t.Spec().Name] {
			reg.Unregister(t.Spec().Name)
		}
	}
}

func (t *adaptedTool) Spec() protocol.ToolSpec { return t.spec }

func (t *adaptedTool) ConcurrencySafety() toolkit.ConcurrencySafety { return toolkit.Mutating }

func (t *adaptedTool) DefaultApproval() toolkit.ApprovalDefault { return toolkit.ApprovalOnRequest }

func (t *adaptedTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	out, err := t.manager.CallTool(ctx, t.server, t.tool, call.Arguments)
	if err != nil {
		return toolkit.ErrorResult(call, toolkit.NewToolErrorf(toolkit.ErrExecutionFailed, "%v", err)), nil
	}
	return toolkit.TextResult(call, out), nil
}
