package toolkit

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/turnforge/agentcore/internal/protocol"
)

func TestBashTool_RunsCommandAndCapturesOutput(t *testing.T) {
	tool := NewBashTool(DefaultOutputLimits(), nil)
	args, _ := json.Marshal(bashArgs{Command: "echo hello"})
	result, err := tool.Execute(context.Background(), protocol.ToolCall{ID: "1", Name: "bash", Arguments: args})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if !strings.Contains(result.Content, "hello") {
		t.Fatalf("expected output to contain 'hello', got %q", result.Content)
	}
	if !strings.Contains(result.Content, "exit_code: 0") {
		t.Fatalf("expected exit_code: 0, got %q", result.Content)
	}
}

func TestBashTool_NonZeroExitCodeIsNotAnError(t *testing.T) {
	tool := NewBashTool(DefaultOutputLimits(), nil)
	args, _ := json.Marshal(bashArgs{Command: "exit 3"})
	result, err := tool.Execute(context.Background(), protocol.ToolCall{ID: "1", Name: "bash", Arguments: args})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("a nonzero exit code should be reported, not treated as a tool error: %+v", result)
	}
	if !strings.Contains(result.Content, "exit_code: 3") {
		t.Fatalf("expected exit_code: 3, got %q", result.Content)
	}
}

func TestBashTool_MissingCommandFails(t *testing.T) {
	tool := NewBashTool(DefaultOutputLimits(), nil)
	args, _ := json.Marshal(bashArgs{})
	result, err := tool.Execute(context.Background(), protocol.ToolCall{ID: "1", Name: "bash", Arguments: args})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing command")
	}
}

func TestBashTool_TimeoutReportsWithoutError(t *testing.T) {
	tool := NewBashTool(DefaultOutputLimits(), nil)
	args, _ := json.Marshal(bashArgs{Command: "sleep 5", TimeoutSeconds: 1})
	result, err := tool.Execute(context.Background(), protocol.ToolCall{ID: "1", Name: "bash", Arguments: args})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result.Content, "timed out") {
		t.Fatalf("expected timeout notice, got %q", result.Content)
	}
}

func TestBashTool_BackgroundStartsJob(t *testing.T) {
	jobs := NewShellJobs()
	tool := NewBashTool(DefaultOutputLimits(), jobs)
	args, _ := json.Marshal(bashArgs{Command: "echo background", Background: true})
	result, err := tool.Execute(context.Background(), protocol.ToolCall{ID: "1", Name: "bash", Arguments: args})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if !strings.Contains(result.Content, "Started background job") {
		t.Fatalf("expected background-job acknowledgement, got %q", result.Content)
	}
}

func TestShellJobs_PollReflectsCompletion(t *testing.T) {
	jobs := NewShellJobs()
	id, err := jobs.Start(buildCommand(".", "echo done", nil))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var stdout string
	var done bool
	for time.Now().Before(deadline) {
		var ok bool
		stdout, _, done, _, ok = jobs.Poll(id)
		if !ok {
			t.Fatal("expected job to be found")
		}
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !done {
		t.Fatal("expected job to complete within the deadline")
	}
	if !strings.Contains(stdout, "done") {
		t.Fatalf("expected stdout to contain 'done', got %q", stdout)
	}
}

func TestShellJobs_PollUnknownIDFails(t *testing.T) {
	jobs := NewShellJobs()
	_, _, _, _, ok := jobs.Poll("nonexistent")
	if ok {
		t.Fatal("expected Poll to report not-found for an unknown job ID")
	}
}

func TestShellJobs_KillTerminatesProcess(t *testing.T) {
	jobs := NewShellJobs()
	id, err := jobs.Start(buildCommand(".", "sleep 30", nil))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := jobs.Kill(id); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var done bool
	for time.Now().Before(deadline) {
		_, _, done, _, _ = jobs.Poll(id)
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !done {
		t.Fatal("expected the killed job to be reported done")
	}
}

func TestShellJobs_KillUnknownIDFails(t *testing.T) {
	jobs := NewShellJobs()
	if err := jobs.Kill("nonexistent"); err == nil {
		t.Fatal("expected error killing an unknown job ID")
	}
}

func TestFormatShellOutput_TruncatesToMaxBytes(t *testing.T) {
	limits := OutputLimits{MaxBytes: 5}
	out := formatShellOutput("abcdefghij", "", 0, false, limits)
	if !strings.Contains(out, "abcde") {
		t.Fatalf("expected truncated stdout, got %q", out)
	}
	if strings.Contains(out, "fghij") {
		t.Fatalf("expected stdout past MaxBytes to be dropped, got %q", out)
	}
}
