package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/turnforge/agentcore/internal/protocol"
)

// WriteTool implements the built-in "write" tool: create-or-overwrite with
// an atomic temp-file-then-rename write, grounded on the teacher's
// write_file tool.
type WriteTool struct {
	BaseTool
}

func NewWriteTool() *WriteTool { return &WriteTool{} }

type writeArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *WriteTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name:        "write",
		Description: "Create or overwrite a file with the given content. Creates parent directories if needed.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":    map[string]interface{}{"type": "string", "description": "Path to the file to write"},
				"content": map[string]interface{}{"type": "string", "description": "Full file content to write"},
			},
			"required":             []string{"path", "content"},
			"additionalProperties": false,
		},
	}
}

func (t *WriteTool) ConcurrencySafety() ConcurrencySafety { return Mutating }
func (t *WriteTool) DefaultApproval() ApprovalDefault     { return ApprovalOnRequest }

func (t *WriteTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	var a writeArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ErrorResult(call, NewToolError(ErrInvalidInput, err.Error())), nil
	}
	if a.Path == "" {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "path is required")), nil
	}

	absPath, err := filepath.Abs(a.Path)
	if err != nil {
		return ErrorResult(call, NewToolErrorf(ErrInvalidInput, "cannot resolve path: %v", err)), nil
	}

	existing := ""
	isNew := true
	if data, err := os.ReadFile(absPath); err == nil {
		existing = string(data)
		isNew = false
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to create directory: %v", err)), nil
	}

	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(a.Content), 0o644); err != nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to write temp file: %v", err)), nil
	}
	if err := os.Rename(tmp, absPath); err != nil {
		os.Remove(tmp)
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to rename temp file: %v", err)), nil
	}

	result := protocol.ToolResult{ID: call.ID, Name: call.Name}
	var sb strings.Builder
	if isNew {
		fmt.Fprintf(&sb, "Created new file: %s\nSize: %d bytes, %d lines", absPath, len(a.Content), countLines(a.Content))
	} else {
		fmt.Fprintf(&sb, "Updated file: %s\nLines: %d -> %d\nSize: %d -> %d bytes",
			absPath, countLines(existing), countLines(a.Content), len(existing), len(a.Content))
		result.Diffs = []protocol.DiffData{{Path: a.Path, OldText: existing, NewText: a.Content}}
	}
	result.Content = sb.String()
	return result, nil
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
