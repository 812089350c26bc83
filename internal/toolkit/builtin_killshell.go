package toolkit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/turnforge/agentcore/internal/protocol"
)

// KillShellTool implements the built-in "kill_shell" tool: terminates a
// background job's process group via the shared ShellJobs registry.
type KillShellTool struct {
	BaseTool
	jobs *ShellJobs
}

func NewKillShellTool(jobs *ShellJobs) *KillShellTool { return &KillShellTool{jobs: jobs} }

type killShellArgs struct {
	JobID string `json:"job_id"`
}

func (t *KillShellTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name:        "kill_shell",
		Description: "Terminate a background task started via bash(background=true).",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"job_id": map[string]interface{}{"type": "string", "description": "Job ID to terminate"},
			},
			"required":             []string{"job_id"},
			"additionalProperties": false,
		},
	}
}

func (t *KillShellTool) ConcurrencySafety() ConcurrencySafety { return Mutating }
func (t *KillShellTool) DefaultApproval() ApprovalDefault     { return ApprovalOnRequest }

func (t *KillShellTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	var a killShellArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ErrorResult(call, NewToolError(ErrInvalidInput, err.Error())), nil
	}
	if a.JobID == "" {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "job_id is required")), nil
	}
	if t.jobs == nil {
		return ErrorResult(call, NewToolError(ErrExecutionFailed, "no background jobs registry configured")), nil
	}

	if err := t.jobs.Kill(a.JobID); err != nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to kill job: %v", err)), nil
	}
	return TextResult(call, fmt.Sprintf("Killed job %s", a.JobID)), nil
}
