package toolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/turnforge/agentcore/internal/protocol"
)

// ExecutionMetadata mirrors the teacher's ToolMetadata: timing and size
// bookkeeping attached to every call, independent of the result content.
type ExecutionMetadata struct {
	ExecutionTimeMs   int64
	PermissionCheckMs int64
	OutputBytes       int
	Truncated         bool
}

// Hooks lets the turn engine (C8) observe pipeline transitions without the
// executor depending on protocol.Event directly, keeping toolkit reusable
// outside a turn context (e.g. unit tests, sub-agent dry runs).
type Hooks struct {
	OnToolExecStart func(call protocol.ToolCall)
	OnToolExecEnd   func(call protocol.ToolCall, result protocol.ToolResult, meta ExecutionMetadata)
}

// Executor runs the 5-stage pipeline for a single tool call: Validate,
// CheckPermission, Execute, PostProcess, Cleanup. Cleanup always runs,
// including on cancellation or a panic inside Execute.
type Executor struct {
	registry *Registry
	checker  PermissionChecker
	hooks    Hooks

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

func NewExecutor(registry *Registry, checker PermissionChecker, hooks Hooks) *Executor {
	return &Executor{
		registry: registry,
		checker:  checker,
		hooks:    hooks,
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// Run executes one call end-to-end. cwd is passed to CheckPermission for
// path-scoping decisions (internal/approval).
func (e *Executor) Run(ctx context.Context, call protocol.ToolCall, cwd string) (protocol.ToolResult, ExecutionMetadata, error) {
	start := time.Now()
	var meta ExecutionMetadata

	if e.hooks.OnToolExecStart != nil {
		e.hooks.OnToolExecStart(call)
	}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		result := ErrorResult(call, NewToolErrorf(ErrNotFound, "no such tool: %s", call.Name))
		meta.ExecutionTimeMs = time.Since(start).Milliseconds()
		e.finish(call, result, meta)
		return result, meta, nil
	}

	// Stage 5 (Cleanup) must run on every exit path.
	defer tool.Cleanup(ctx, call)

	// Stage 1: Validate (JSON Schema, then tool-specific semantic checks).
	if err := e.validateSchema(tool, call.Arguments); err != nil {
		result := ErrorResult(call, NewToolError(ErrInvalidInput, err.Error()))
		meta.ExecutionTimeMs = time.Since(start).Milliseconds()
		e.finish(call, result, meta)
		return result, meta, nil
	}
	if err := tool.Validate(call.Arguments); err != nil {
		result := ErrorResult(call, asToolError(err, ErrInvalidInput))
		meta.ExecutionTimeMs = time.Since(start).Milliseconds()
		e.finish(call, result, meta)
		return result, meta, nil
	}

	// Stage 2: CheckPermission.
	permStart := time.Now()
	decision, err := e.checkPermission(ctx, tool, call, cwd)
	meta.PermissionCheckMs = time.Since(permStart).Milliseconds()
	if err != nil {
		result := ErrorResult(call, asToolError(err, ErrPermissionDenied))
		meta.ExecutionTimeMs = time.Since(start).Milliseconds()
		e.finish(call, result, meta)
		return result, meta, nil
	}
	switch decision.Decision {
	case PermissionDenyOnce:
		result := ErrorResult(call, NewToolErrorf(ErrPermissionDenied, "denied: %s", decision.Reason))
		meta.ExecutionTimeMs = time.Since(start).Milliseconds()
		e.finish(call, result, meta)
		return result, meta, nil
	case PermissionAskUser:
		// The turn engine parks this call; signal via a distinguished error
		// kind rather than faking a result, so the scheduler can hold it
		// open instead of treating it as answered.
		return protocol.ToolResult{}, meta, &AskUserError{RequestID: decision.RequestID, Call: call}
	}

	// Stage 3: Execute, guarding against panics so Cleanup still runs and
	// the model sees a normal error result instead of killing the turn.
	result, execErr := e.safeExecute(ctx, tool, call)
	if execErr != nil {
		result = ErrorResult(call, asToolError(execErr, ErrExecutionFailed))
	}

	// Stage 4: PostProcess.
	result = tool.PostProcess(ctx, result)

	meta.OutputBytes = len(result.Content)
	meta.ExecutionTimeMs = time.Since(start).Milliseconds()
	e.finish(call, result, meta)
	return result, meta, nil
}

func (e *Executor) finish(call protocol.ToolCall, result protocol.ToolResult, meta ExecutionMetadata) {
	if e.hooks.OnToolExecEnd != nil {
		e.hooks.OnToolExecEnd(call, result, meta)
	}
}

func (e *Executor) checkPermission(ctx context.Context, tool Tool, call protocol.ToolCall, cwd string) (PermissionResult, error) {
	if e.checker == nil {
		return PermissionResult{Decision: PermissionAllow}, nil
	}
	return e.checker.CheckPermission(ctx, PermissionRequest{
		ToolName:          call.Name,
		Arguments:         call.Arguments,
		Cwd:               cwd,
		ConcurrencySafety: tool.ConcurrencySafety(),
		DefaultApproval:   tool.DefaultApproval(),
	})
}

func (e *Executor) safeExecute(ctx context.Context, tool Tool, call protocol.ToolCall) (result protocol.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in tool %s: %v", call.Name, r)
		}
	}()
	return tool.Execute(ctx, call)
}

// validateSchema compiles (once, cached) and checks the tool's declared
// JSON Schema against the raw arguments, per spec §4.3 stage 1.
func (e *Executor) validateSchema(tool Tool, args json.RawMessage) error {
	spec := tool.Spec()
	if len(spec.Schema) == 0 {
		return nil
	}

	schema, err := e.compiledSchema(spec)
	if err != nil {
		return fmt.Errorf("invalid schema for %s: %w", spec.Name, err)
	}

	var v interface{}
	if len(args) == 0 {
		v = map[string]interface{}{}
	} else if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}

	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("arguments do not match schema: %w", err)
	}
	return nil
}

func (e *Executor) compiledSchema(spec protocol.ToolSpec) (*jsonschema.Schema, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.schemas[spec.Name]; ok {
		return s, nil
	}

	raw, err := json.Marshal(spec.Schema)
	if err != nil {
		return nil, err
	}

	url := "mem://toolkit/" + spec.Name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	e.schemas[spec.Name] = schema
	return schema, nil
}

// AskUserError signals that CheckPermission wants the turn parked on a
// human decision rather than resolved automatically.
type AskUserError struct {
	RequestID string
	Call      protocol.ToolCall
}

func (e *AskUserError) Error() string {
	return fmt.Sprintf("tool call %s awaiting approval (request %s)", e.Call.ID, e.RequestID)
}

func asToolError(err error, fallback ErrorKind) *ToolError {
	if te, ok := err.(*ToolError); ok {
		return te
	}
	return NewToolError(fallback, err.Error())
}
