package toolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/turnforge/agentcore/internal/protocol"
)

// BashTool implements the built-in "bash" tool: synchronous shell execution
// with a context timeout, process-group isolation, and stdin disconnected
// from any interactive terminal, grounded on the teacher's ShellTool.
//
// Background execution (spec's task_output/kill_shell pair) is modeled by a
// ShellJobs registry: BashTool starts jobs there when background=true, and
// KillShellTool and TaskOutputTool share it.
type BashTool struct {
	BaseTool
	limits OutputLimits
	jobs   *ShellJobs
}

func NewBashTool(limits OutputLimits, jobs *ShellJobs) *BashTool {
	return &BashTool{limits: limits, jobs: jobs}
}

type bashArgs struct {
	Command        string            `json:"command"`
	WorkingDir     string            `json:"working_dir,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	Background     bool              `json:"background,omitempty"`
}

func (t *BashTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name:        "bash",
		Description: "Execute a shell command. Returns stdout, stderr, and exit code. Set background=true to run detached and poll with task_output.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command":         map[string]interface{}{"type": "string", "description": "Shell command to execute"},
				"working_dir":     map[string]interface{}{"type": "string", "description": "Working directory (defaults to current directory)"},
				"timeout_seconds": map[string]interface{}{"type": "integer", "description": "Command timeout in seconds (default 30, max 300)", "default": 30},
				"env":             map[string]interface{}{"type": "object", "description": "Environment variables to set", "additionalProperties": map[string]interface{}{"type": "string"}},
				"background":      map[string]interface{}{"type": "boolean", "description": "Run detached; poll output via task_output"},
			},
			"required":             []string{"command"},
			"additionalProperties": false,
		},
	}
}

func (t *BashTool) ConcurrencySafety() ConcurrencySafety { return Mutating }
func (t *BashTool) DefaultApproval() ApprovalDefault     { return ApprovalOnRequest }

func (t *BashTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	var a bashArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ErrorResult(call, NewToolError(ErrInvalidInput, err.Error())), nil
	}
	if a.Command == "" {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "command is required")), nil
	}

	timeout := 30
	if a.TimeoutSeconds > 0 {
		timeout = a.TimeoutSeconds
	}
	if timeout > 300 {
		timeout = 300
	}

	workDir := a.WorkingDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "cannot get working directory: %v", err)), nil
		}
		workDir = wd
	}

	if a.Background && t.jobs != nil {
		jobID, err := t.jobs.Start(buildCommand(workDir, a.Command, a.Env))
		if err != nil {
			return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to start background command: %v", err)), nil
		}
		return TextResult(call, fmt.Sprintf("Started background job %s. Poll with task_output(job_id=%q).", jobID, jobID)), nil
	}

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "bash"
	}
	cmd := exec.CommandContext(execCtx, shell, "-c", a.Command)
	cmd.Dir = workDir
	cmd.Env = buildEnv(a.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if devNull, err := os.OpenFile(os.DevNull, os.O_RDONLY, 0); err == nil {
		cmd.Stdin = devNull
		defer devNull.Close()
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if execCtx.Err() == context.DeadlineExceeded {
		return TextResult(call, formatShellOutput(stdout.String(), stderr.String(), 0, true, t.limits)), nil
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "command error: %v", runErr)), nil
		}
	}

	return TextResult(call, formatShellOutput(stdout.String(), stderr.String(), exitCode, false, t.limits)), nil
}

func buildCommand(workDir, command string, env map[string]string) *exec.Cmd {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "bash"
	}
	cmd := exec.Command(shell, "-c", command)
	cmd.Dir = workDir
	cmd.Env = buildEnv(env)
	return cmd
}

func buildEnv(overrides map[string]string) []string {
	shadow := make(map[string]struct{}, len(overrides))
	for k := range overrides {
		shadow[k] = struct{}{}
	}
	env := make([]string, 0, len(os.Environ())+len(overrides))
	for _, e := range os.Environ() {
		if k, _, ok := strings.Cut(e, "="); ok {
			if _, shadowed := shadow[k]; shadowed {
				continue
			}
		}
		env = append(env, e)
	}
	for k, v := range overrides {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

func formatShellOutput(stdout, stderr string, exitCode int, timedOut bool, limits OutputLimits) string {
	var sb strings.Builder
	if limits.MaxBytes > 0 {
		if int64(len(stdout)) > limits.MaxBytes {
			stdout = stdout[:limits.MaxBytes]
		}
		if int64(len(stderr)) > limits.MaxBytes {
			stderr = stderr[:limits.MaxBytes]
		}
	}
	if timedOut {
		sb.WriteString("[Command timed out]\n\n")
	}
	if stdout != "" {
		sb.WriteString("stdout:\n")
		sb.WriteString(stdout)
		if !strings.HasSuffix(stdout, "\n") {
			sb.WriteString("\n")
		}
	}
	if stderr != "" {
		if stdout != "" {
			sb.WriteString("\n")
		}
		sb.WriteString("stderr:\n")
		sb.WriteString(stderr)
		if !strings.HasSuffix(stderr, "\n") {
			sb.WriteString("\n")
		}
	}
	fmt.Fprintf(&sb, "\nexit_code: %d", exitCode)
	return sb.String()
}

// ShellJobs tracks detached background shell invocations so task_output can
// poll them and kill_shell can terminate them, per spec's built-in tool
// list ("task_output", "kill_shell").
type ShellJobs struct {
	mu   sync.Mutex
	jobs map[string]*shellJob
}

type shellJob struct {
	cmd      *exec.Cmd
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
	done     bool
	exitCode int
	err      error
}

func NewShellJobs() *ShellJobs {
	return &ShellJobs{jobs: make(map[string]*shellJob)}
}

func (j *ShellJobs) Start(cmd *exec.Cmd) (string, error) {
	id := uuid.NewString()
	job := &shellJob{cmd: cmd, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	cmd.Stdout = job.stdout
	cmd.Stderr = job.stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return "", err
	}

	j.mu.Lock()
	j.jobs[id] = job
	j.mu.Unlock()

	go func() {
		err := cmd.Wait()
		j.mu.Lock()
		defer j.mu.Unlock()
		job.done = true
		job.err = err
		if exitErr, ok := err.(*exec.ExitError); ok {
			job.exitCode = exitErr.ExitCode()
		}
	}()

	return id, nil
}

// Poll returns the job's output so far and whether it has finished.
func (j *ShellJobs) Poll(id string) (stdout, stderr string, done bool, exitCode int, ok bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, exists := j.jobs[id]
	if !exists {
		return "", "", false, 0, false
	}
	return job.stdout.String(), job.stderr.String(), job.done, job.exitCode, true
}

// Kill terminates the job's process group.
func (j *ShellJobs) Kill(id string) error {
	j.mu.Lock()
	job, exists := j.jobs[id]
	j.mu.Unlock()
	if !exists {
		return fmt.Errorf("no such job: %s", id)
	}
	if job.cmd.Process == nil {
		return fmt.Errorf("job %s has no process", id)
	}
	return syscall.Kill(-job.cmd.Process.Pid, syscall.SIGKILL)
}

// KillAll terminates every still-running tracked job's process group. Used at
// session end so detached background shells don't outlive their session.
func (j *ShellJobs) KillAll() {
	j.mu.Lock()
	jobs := make([]*shellJob, 0, len(j.jobs))
	for _, job := range j.jobs {
		jobs = append(jobs, job)
	}
	j.mu.Unlock()

	for _, job := range jobs {
		if job.done || job.cmd.Process == nil {
			continue
		}
		_ = syscall.Kill(-job.cmd.Process.Pid, syscall.SIGKILL)
	}
}
