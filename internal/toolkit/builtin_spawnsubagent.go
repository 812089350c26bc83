package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/turnforge/agentcore/internal/protocol"
)

// SubAgentRunResult is what a completed sub-agent run produced.
type SubAgentRunResult struct {
	Output    string
	SessionID string
}

// SubAgentRunner runs a sub-agent turn loop to completion and returns its
// final text output. Defined here (rather than imported from
// internal/subagent) so toolkit has no dependency on it; subagent.Coordinator
// is the concrete implementation, mirroring PermissionChecker.
type SubAgentRunner interface {
	RunSubAgent(ctx context.Context, agentName, prompt string, depth int) (SubAgentRunResult, error)
}

// SpawnSubAgentConfig bounds concurrent and nested sub-agent spawning.
type SpawnSubAgentConfig struct {
	MaxParallel    int
	MaxDepth       int
	DefaultTimeout int
	AllowedAgents  []string
}

func DefaultSpawnSubAgentConfig() SpawnSubAgentConfig {
	return SpawnSubAgentConfig{MaxParallel: 3, MaxDepth: 2, DefaultTimeout: 300}
}

// SpawnSubAgentTool implements the built-in "spawn_subagent" tool, grounded
// on the teacher's SpawnAgentTool (semaphore-bounded concurrency, depth
// limiting, an allowlist, and a runner interface to avoid an import cycle
// with the coordinator that actually runs sub-agent turn loops).
type SpawnSubAgentTool struct {
	BaseTool
	runner    SubAgentRunner
	config    SpawnSubAgentConfig
	semaphore chan struct{}
	depth     int
	mu        sync.Mutex
}

func NewSpawnSubAgentTool(runner SubAgentRunner, config SpawnSubAgentConfig, depth int) *SpawnSubAgentTool {
	if config.MaxParallel <= 0 {
		config.MaxParallel = 3
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = 2
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 300
	}
	return &SpawnSubAgentTool{runner: runner, config: config, semaphore: make(chan struct{}, config.MaxParallel), depth: depth}
}

type spawnSubAgentArgs struct {
	AgentName string `json:"agent_name"`
	Prompt    string `json:"prompt"`
	Timeout   int    `json:"timeout,omitempty"`
}

type spawnSubAgentResult struct {
	AgentName string `json:"agent_name"`
	Output    string `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
	Type      string `json:"type,omitempty"`
	Duration  int64  `json:"duration_ms,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (t *SpawnSubAgentTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name: "spawn_subagent",
		Description: `Spawn a sub-agent to handle a specific task autonomously, running in its own context with its own tools. The sub-agent is instructed to work read-only and not to spawn further sub-agents.`,
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"agent_name": map[string]interface{}{"type": "string", "description": "Name of the agent persona to spawn"},
				"prompt":     map[string]interface{}{"type": "string", "description": "Task for the sub-agent"},
				"timeout":    map[string]interface{}{"type": "integer", "minimum": 10, "maximum": 3600, "default": 300},
			},
			"required":             []string{"agent_name", "prompt"},
			"additionalProperties": false,
		},
	}
}

func (t *SpawnSubAgentTool) ConcurrencySafety() ConcurrencySafety { return Mutating }
func (t *SpawnSubAgentTool) DefaultApproval() ApprovalDefault     { return ApprovalOnRequest }

func (t *SpawnSubAgentTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	var a spawnSubAgentArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return marshalSpawnResult(call, spawnSubAgentResult{Error: err.Error(), Type: string(ErrInvalidInput)}), nil
	}
	if a.AgentName == "" || a.Prompt == "" {
		return marshalSpawnResult(call, spawnSubAgentResult{Error: "agent_name and prompt are required", Type: string(ErrInvalidInput)}), nil
	}
	if t.depth >= t.config.MaxDepth {
		return marshalSpawnResult(call, spawnSubAgentResult{Error: fmt.Sprintf("max sub-agent depth exceeded (current: %d, max: %d)", t.depth, t.config.MaxDepth), Type: string(ErrPermissionDenied)}), nil
	}
	if len(t.config.AllowedAgents) > 0 {
		allowed := false
		for _, n := range t.config.AllowedAgents {
			if n == a.AgentName {
				allowed = true
				break
			}
		}
		if !allowed {
			return marshalSpawnResult(call, spawnSubAgentResult{Error: fmt.Sprintf("agent %q is not in the allowed list", a.AgentName), Type: string(ErrPermissionDenied)}), nil
		}
	}
	if t.runner == nil {
		return marshalSpawnResult(call, spawnSubAgentResult{Error: "no sub-agent runner configured", Type: string(ErrExecutionFailed)}), nil
	}

	timeout := t.config.DefaultTimeout
	if a.Timeout > 0 {
		timeout = a.Timeout
	}
	if timeout < 10 {
		timeout = 10
	}
	if timeout > 3600 {
		timeout = 3600
	}

	select {
	case t.semaphore <- struct{}{}:
		defer func() { <-t.semaphore }()
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return marshalSpawnResult(call, spawnSubAgentResult{Error: "timed out waiting for a free sub-agent slot", Type: string(ErrTimeout)}), nil
		}
		return marshalSpawnResult(call, spawnSubAgentResult{Error: "cancelled while waiting for a sub-agent slot", Type: string(ErrCancelled)}), nil
	}

	childCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	start := time.Now()
	result, err := t.runner.RunSubAgent(childCtx, a.AgentName, a.Prompt, t.depth+1)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return marshalSpawnResult(call, spawnSubAgentResult{Error: fmt.Sprintf("agent %q timed out after %ds", a.AgentName, timeout), Type: string(ErrTimeout), Duration: duration}), nil
		}
		if errors.Is(err, context.Canceled) {
			return marshalSpawnResult(call, spawnSubAgentResult{Error: "sub-agent execution cancelled", Type: string(ErrCancelled), Duration: duration}), nil
		}
		return marshalSpawnResult(call, spawnSubAgentResult{Error: fmt.Sprintf("sub-agent execution failed: %v", err), Type: string(ErrExecutionFailed), Duration: duration}), nil
	}

	return marshalSpawnResult(call, spawnSubAgentResult{AgentName: a.AgentName, Output: result.Output, SessionID: result.SessionID, Duration: duration}), nil
}

func marshalSpawnResult(call protocol.ToolCall, result spawnSubAgentResult) protocol.ToolResult {
	data, err := json.Marshal(result)
	if err != nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to marshal result: %v", err))
	}
	return protocol.ToolResult{ID: call.ID, Name: call.Name, Content: string(data), IsError: result.Error != ""}
}
