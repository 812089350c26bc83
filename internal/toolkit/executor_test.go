package toolkit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/turnforge/agentcore/internal/protocol"
)

type fixedChecker struct {
	decision PermissionDecision
	calls    int
}

func (c *fixedChecker) CheckPermission(ctx context.Context, req PermissionRequest) (PermissionResult, error) {
	c.calls++
	return PermissionResult{Decision: c.decision}, nil
}

type panicTool struct {
	BaseTool
}

func (p *panicTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{Name: "boom", Schema: map[string]interface{}{"type": "object"}}
}
func (p *panicTool) ConcurrencySafety() ConcurrencySafety { return Mutating }
func (p *panicTool) DefaultApproval() ApprovalDefault     { return ApprovalNever }
func (p *panicTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	panic("kaboom")
}

type cleanupTrackingTool struct {
	BaseTool
	cleaned bool
}

func (c *cleanupTrackingTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{Name: "track", Schema: map[string]interface{}{"type": "object"}}
}
func (c *cleanupTrackingTool) ConcurrencySafety() ConcurrencySafety { return Mutating }
func (c *cleanupTrackingTool) DefaultApproval() ApprovalDefault     { return ApprovalNever }
func (c *cleanupTrackingTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	panic("still cleans up")
}
func (c *cleanupTrackingTool) Cleanup(ctx context.Context, call protocol.ToolCall) {
	c.cleaned = true
}

func TestExecutor_HappyPath(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&stubTool{name: "read", safety: ReadOnly})
	checker := &fixedChecker{decision: PermissionAllow}
	e := NewExecutor(r, checker, Hooks{})

	result, _, err := e.Run(context.Background(), mustCall("read"), "/tmp")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if checker.calls != 1 {
		t.Fatalf("expected exactly one permission check, got %d", checker.calls)
	}
}

func TestExecutor_UnknownToolErrors(t *testing.T) {
	r := NewRegistry()
	e := NewExecutor(r, &fixedChecker{decision: PermissionAllow}, Hooks{})

	result, _, err := e.Run(context.Background(), mustCall("nonexistent"), "/tmp")
	if err != nil {
		t.Fatalf("Run returned error instead of an error ToolResult: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error ToolResult for an unregistered tool")
	}
}

func TestExecutor_PermissionDenyOnceProducesErrorResult(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&stubTool{name: "write", safety: Mutating})
	e := NewExecutor(r, &fixedChecker{decision: PermissionDenyOnce}, Hooks{})

	result, _, err := e.Run(context.Background(), mustCall("write"), "/tmp")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected denied permission to produce an IsError result")
	}
}

func TestExecutor_AskUserParksTheCall(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&stubTool{name: "write", safety: Mutating})
	e := NewExecutor(r, &fixedChecker{decision: PermissionAskUser}, Hooks{})

	_, _, err := e.Run(context.Background(), mustCall("write"), "/tmp")
	askErr, ok := err.(*AskUserError)
	if !ok {
		t.Fatalf("expected *AskUserError, got %T (%v)", err, err)
	}
	if askErr.Call.Name != "write" {
		t.Fatalf("unexpected parked call: %+v", askErr.Call)
	}
}

func TestExecutor_RecoversPanicAsErrorResult(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&panicTool{})
	e := NewExecutor(r, &fixedChecker{decision: PermissionAllow}, Hooks{})

	result, _, err := e.Run(context.Background(), mustCall("boom"), "/tmp")
	if err != nil {
		t.Fatalf("Run returned error instead of an error ToolResult: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a panic to be converted into an IsError ToolResult")
	}
}

func TestExecutor_CleanupRunsEvenOnPanic(t *testing.T) {
	r := NewRegistry()
	tool := &cleanupTrackingTool{}
	_ = r.Register(tool)
	e := NewExecutor(r, &fixedChecker{decision: PermissionAllow}, Hooks{})

	_, _, _ = e.Run(context.Background(), mustCall("track"), "/tmp")
	if !tool.cleaned {
		t.Fatal("expected Cleanup to run even after a panicking Execute")
	}
}

func TestExecutor_InvalidArgumentsFailValidation(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&stubTool{name: "read", safety: ReadOnly})
	e := NewExecutor(r, &fixedChecker{decision: PermissionAllow}, Hooks{})

	call := protocol.ToolCall{ID: "c1", Name: "read", Arguments: json.RawMessage(`not json`)}
	result, _, err := e.Run(context.Background(), call, "/tmp")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected invalid JSON arguments to fail validation")
	}
}

func TestExecutor_HooksFire(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&stubTool{name: "read", safety: ReadOnly})
	var started, ended int
	hooks := Hooks{
		OnToolExecStart: func(call protocol.ToolCall) { started++ },
		OnToolExecEnd:   func(call protocol.ToolCall, result protocol.ToolResult, meta ExecutionMetadata) { ended++ },
	}
	e := NewExecutor(r, &fixedChecker{decision: PermissionAllow}, hooks)

	_, _, _ = e.Run(context.Background(), mustCall("read"), "/tmp")
	if started != 1 || ended != 1 {
		t.Fatalf("expected hooks to fire exactly once each, got start=%d end=%d", started, ended)
	}
}
