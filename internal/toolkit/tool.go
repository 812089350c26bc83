// Package toolkit implements the tool registry and 5-stage execution
// pipeline: Validate, CheckPermission, Execute, PostProcess, Cleanup.
package toolkit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/turnforge/agentcore/internal/protocol"
)

// ConcurrencySafety classifies how a tool may be scheduled relative to
// other in-flight tool calls within the same turn.
type ConcurrencySafety int

const (
	// ReadOnly calls never mutate state observable to other tools and may
	// run concurrently with any number of other ReadOnly calls.
	ReadOnly ConcurrencySafety = iota
	// Mutating calls change state and must not overlap with any other
	// non-ReadOnly call, but don't require the full drain an Exclusive
	// call needs.
	Mutating
	// Exclusive calls must run alone: no ReadOnly work may be in flight
	// when they start, and nothing else starts until they finish.
	Exclusive
)

func (c ConcurrencySafety) String() string {
	switch c {
	case ReadOnly:
		return "read_only"
	case Mutating:
		return "mutating"
	case Exclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

// ApprovalDefault is the tool's declared default approval posture, consulted
// by the permission checker (internal/approval) alongside session policy.
type ApprovalDefault int

const (
	ApprovalNever ApprovalDefault = iota
	ApprovalOnRequest
	ApprovalUnlessTrusted
	ApprovalAlways
)

func (a ApprovalDefault) String() string {
	switch a {
	case ApprovalNever:
		return "never"
	case ApprovalOnRequest:
		return "on_request"
	case ApprovalUnlessTrusted:
		return "unless_trusted"
	case ApprovalAlways:
		return "always"
	default:
		return "unknown"
	}
}

// ErrorKind taxonomizes tool-stage failures, generalizing the teacher's
// ToolErrorType into the categories the spec's pipeline stages name plus the
// concrete failure modes built-in tools surface.
type ErrorKind string

const (
	ErrInvalidInput       ErrorKind = "InvalidInput"
	ErrPermissionDenied   ErrorKind = "PermissionDenied"
	ErrAccessDenied       ErrorKind = "AccessDenied"
	ErrSandboxSetupFailed ErrorKind = "SandboxSetupFailed"
	ErrExecutionFailed    ErrorKind = "ExecutionFailed"
	ErrTimeout            ErrorKind = "Timeout"
	ErrNotFound           ErrorKind = "NotFound"
	ErrBinaryFile         ErrorKind = "BinaryFile"
	ErrFileTooLarge       ErrorKind = "FileTooLarge"
	ErrUnsupportedFormat  ErrorKind = "UnsupportedFormat"
	ErrSymlinkEscape      ErrorKind = "SymlinkEscape"
	ErrCancelled          ErrorKind = "Cancelled"
)

// ToolError is the structured error a tool stage returns. The executor
// converts it into an error-flagged protocol.ToolResult rather than
// propagating it as a Go error up through the turn engine, including
// CheckPermission/Validate failures, which end the call before Execute runs.
type ToolError struct {
	Kind    ErrorKind
	Message string
}

func NewToolError(kind ErrorKind, message string) *ToolError {
	return &ToolError{Kind: kind, Message: message}
}

func NewToolErrorf(kind ErrorKind, format string, args ...interface{}) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Tool is the unit registered in a Registry. Concrete tools (read, write,
// bash, grep, ...) and MCP wrappers both implement this.
type Tool interface {
	// Spec describes the tool's name, description, and JSON Schema for
	// arguments, as advertised to the model.
	Spec() protocol.ToolSpec

	// ConcurrencySafety determines how the scheduler may run this tool
	// relative to other in-flight calls.
	ConcurrencySafety() ConcurrencySafety

	// DefaultApproval is consulted by CheckPermission when no explicit
	// rule matches the call.
	DefaultApproval() ApprovalDefault

	// Validate performs stage 1: structural/semantic argument checking
	// beyond JSON Schema (schema validation itself is applied by the
	// executor before this is called). Return a *ToolError for bad input.
	Validate(args json.RawMessage) error

	// Execute performs stage 3: the tool's actual work. A failure that
	// should be reported to the model (not aborted) should be returned
	// inside the ToolResult with IsError=true, not as a Go error; the
	// executor replaces the result of a non-nil error here (or a panic)
	// with an ExecutionFailed error result.
	Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error)

	// PostProcess performs stage 4: normalizing/clipping output before it
	// re-enters history. The default behavior (if a tool has none to add)
	// is to return result unchanged.
	PostProcess(ctx context.Context, result protocol.ToolResult) protocol.ToolResult

	// Cleanup performs stage 5 and MUST run on every exit path, including
	// cancellation.
	Cleanup(ctx context.Context, call protocol.ToolCall)
}

// FinishingTool is an optional interface: tools whose successful execution
// should end the turn (e.g. exit_plan_mode, set_output-style tools).
type FinishingTool interface {
	IsFinishingTool() bool
}

// BaseTool supplies no-op Validate/PostProcess/Cleanup so concrete tools
// only need to override what they actually use.
type BaseTool struct{}

func (BaseTool) Validate(args json.RawMessage) error { return nil }
func (BaseTool) PostProcess(ctx context.Context, result protocol.ToolResult) protocol.ToolResult {
	return result
}
func (BaseTool) Cleanup(ctx context.Context, call protocol.ToolCall) {}

// ErrorResult builds an IsError ToolResult for the given call, the shape
// every built-in tool returns on a ToolError rather than surfacing a Go
// error (mirrors the teacher's formatToolError convention).
func ErrorResult(call protocol.ToolCall, err *ToolError) protocol.ToolResult {
	return protocol.ToolResult{
		ID:      call.ID,
		Name:    call.Name,
		Content: fmt.Sprintf("Error [%s]: %s", err.Kind, err.Message),
		IsError: true,
	}
}

// TextResult builds a successful text ToolResult.
func TextResult(call protocol.ToolCall, text string) protocol.ToolResult {
	return protocol.ToolResult{ID: call.ID, Name: call.Name, Content: text}
}
