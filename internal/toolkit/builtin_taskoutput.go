package toolkit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/turnforge/agentcore/internal/protocol"
)

// TaskOutputTool implements the built-in "task_output" tool: polls a
// background bash job started with bash(background=true) for its output
// so far, grounded on the ShellJobs registry shared with BashTool and
// KillShellTool.
type TaskOutputTool struct {
	BaseTool
	jobs   *ShellJobs
	limits OutputLimits
}

func NewTaskOutputTool(jobs *ShellJobs, limits OutputLimits) *TaskOutputTool {
	return &TaskOutputTool{jobs: jobs, limits: limits}
}

type taskOutputArgs struct {
	JobID string `json:"job_id"`
}

func (t *TaskOutputTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name:        "task_output",
		Description: "Poll a background task (started via bash with background=true) for its output so far and whether it has finished.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"job_id": map[string]interface{}{"type": "string", "description": "Job ID returned when the background task was started"},
			},
			"required":             []string{"job_id"},
			"additionalProperties": false,
		},
	}
}

// Mutating, not ReadOnly: a poll can observe a job transitioning to done,
// an externally visible side effect that must not be reordered around
// concurrent kill_shell calls targeting the same job.
func (t *TaskOutputTool) ConcurrencySafety() ConcurrencySafety { return Mutating }
func (t *TaskOutputTool) DefaultApproval() ApprovalDefault     { return ApprovalNever }

func (t *TaskOutputTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	var a taskOutputArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ErrorResult(call, NewToolError(ErrInvalidInput, err.Error())), nil
	}
	if a.JobID == "" {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "job_id is required")), nil
	}
	if t.jobs == nil {
		return ErrorResult(call, NewToolError(ErrExecutionFailed, "no background jobs registry configured")), nil
	}

	stdout, stderr, done, exitCode, ok := t.jobs.Poll(a.JobID)
	if !ok {
		return ErrorResult(call, NewToolErrorf(ErrNotFound, "no such job: %s", a.JobID)), nil
	}

	status := "running"
	if done {
		status = "done"
	}
	text := formatShellOutput(stdout, stderr, exitCode, false, t.limits)
	return TextResult(call, fmt.Sprintf("status: %s\n%s", status, text)), nil
}
