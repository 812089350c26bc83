package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/turnforge/agentcore/internal/protocol"
)

// MCPCaller forwards a tools/call request to a running MCP server and
// returns its formatted text content. Defined here rather than depending
// directly on internal/mcp's client/session types so toolkit stays free of
// the MCP transport stack; internal/mcp's Manager implements this.
type MCPCaller interface {
	CallTool(ctx context.Context, server, tool string, args json.RawMessage) (string, error)
}

// MCPTool wraps one tool advertised by an MCP server as a toolkit.Tool,
// namespaced as "<server>/<tool>" per the registry's collision-avoidance
// convention. Grounded on the teacher's MCPTool, adapted from its "__"
// separator to the spec's "/" namespacing and from a single return string
// to the richer ToolResult shape.
type MCPTool struct {
	BaseTool
	caller     MCPCaller
	server     string
	tool       string
	spec       protocol.ToolSpec
	timeout    time.Duration
	concurrent ConcurrencySafety
}

// NewMCPTool builds a wrapper for server/tool. The server's own schema is
// used for validation (stage 1 delegates entirely to JSON Schema, as MCP
// tools have no compiled-in Validate); since an MCP server can't declare
// concurrency safety, every wrapped tool defaults to Mutating unless
// overridden via WithConcurrencySafety.
func NewMCPTool(caller MCPCaller, server, tool, description string, schema map[string]interface{}, timeout time.Duration) *MCPTool {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &MCPTool{
		caller:  caller,
		server:  server,
		tool:    tool,
		timeout: timeout,
		concurrent: Mutating,
		spec: protocol.ToolSpec{
			Name:        fmt.Sprintf("%s/%s", server, tool),
			Description: description,
			Schema:      schema,
		},
	}
}

// WithConcurrencySafety lets the registrar mark a wrapped tool ReadOnly
// when the MCP server's own manifest (or operator config) says it is safe
// to run in parallel with others.
func (t *MCPTool) WithConcurrencySafety(s ConcurrencySafety) *MCPTool {
	t.concurrent = s
	return t
}

func (t *MCPTool) Spec() protocol.ToolSpec                  { return t.spec }
func (t *MCPTool) ConcurrencySafety() ConcurrencySafety      { return t.concurrent }
func (t *MCPTool) DefaultApproval() ApprovalDefault          { return ApprovalOnRequest }

func (t *MCPTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	if t.caller == nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "MCP server %s is not connected", t.server)), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	content, err := t.caller.CallTool(callCtx, t.server, t.tool, call.Arguments)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return ErrorResult(call, NewToolErrorf(ErrTimeout, "MCP tool %s/%s timed out after %s", t.server, t.tool, t.timeout)), nil
		}
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "MCP tool %s/%s failed: %v", t.server, t.tool, err)), nil
	}
	return TextResult(call, content), nil
}

// RegisterMCPTools wraps and registers every tool the caller currently
// advertises for server, one MCPTool per (server, tool) pair.
func RegisterMCPTools(registry *Registry, caller MCPCaller, server string, toolSpecs []protocol.ToolSpec, timeout time.Duration) error {
	for _, spec := range toolSpecs {
		wrapped := NewMCPTool(caller, server, spec.Name, spec.Description, spec.Schema, timeout)
		if err := registry.Register(wrapped); err != nil {
			return fmt.Errorf("register MCP tool %s/%s: %w", server, spec.Name, err)
		}
	}
	return nil
}
