package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/turnforge/agentcore/internal/protocol"
)

// ReadTool implements the built-in "read" tool: ReadOnly, line-numbered
// file reads with pagination, grounded on the teacher's read_file tool.
type ReadTool struct {
	BaseTool
	limits OutputLimits
}

func NewReadTool(limits OutputLimits) *ReadTool {
	return &ReadTool{limits: limits}
}

type readArgs struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

func (t *ReadTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name:        "read",
		Description: "Read file contents. Returns line-numbered output. Use start_line/end_line for pagination.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":       map[string]interface{}{"type": "string", "description": "Path to the file to read"},
				"start_line": map[string]interface{}{"type": "integer", "description": "1-indexed start line (default: 1)"},
				"end_line":   map[string]interface{}{"type": "integer", "description": "1-indexed end line (default: EOF)"},
			},
			"required":             []string{"path"},
			"additionalProperties": false,
		},
	}
}

func (t *ReadTool) ConcurrencySafety() ConcurrencySafety { return ReadOnly }
func (t *ReadTool) DefaultApproval() ApprovalDefault     { return ApprovalUnlessTrusted }

func (t *ReadTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	var a readArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ErrorResult(call, NewToolError(ErrInvalidInput, err.Error())), nil
	}
	if a.Path == "" {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "path is required")), nil
	}

	data, err := os.ReadFile(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(call, NewToolError(ErrNotFound, a.Path)), nil
		}
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "read error: %v", err)), nil
	}

	if isBinaryContent(data) {
		return ErrorResult(call, NewToolErrorf(ErrBinaryFile, "%s appears to be a binary file", a.Path)), nil
	}

	lines := strings.Split(string(data), "\n")
	totalLines := len(lines)

	start := 0
	if a.StartLine > 0 {
		start = a.StartLine - 1
	}
	if start >= totalLines {
		return ErrorResult(call, NewToolErrorf(ErrInvalidInput, "start_line %d exceeds file length %d", a.StartLine, totalLines)), nil
	}

	end := totalLines
	if a.EndLine > 0 && a.EndLine < totalLines {
		end = a.EndLine
	}
	if start >= end {
		return TextResult(call, "No content in requested range."), nil
	}

	selected := lines[start:end]
	truncated := false
	if t.limits.MaxLines > 0 && len(selected) > t.limits.MaxLines {
		selected = selected[:t.limits.MaxLines]
		truncated = true
	}

	var sb strings.Builder
	for i, line := range selected {
		fmt.Fprintf(&sb, "%d: %s\n", start+i+1, line)
	}
	output := strings.TrimSuffix(sb.String(), "\n")

	if t.limits.MaxBytes > 0 && int64(len(output)) > t.limits.MaxBytes {
		output = output[:t.limits.MaxBytes]
		truncated = true
	}
	if truncated {
		output += fmt.Sprintf("\n\n[Output truncated. Total lines: %d. Use start_line/end_line for pagination.]", totalLines)
	}

	return TextResult(call, output), nil
}

// isBinaryContent detects binary content via http.DetectContentType plus a
// NUL-byte check, matching the teacher's read_file heuristic.
func isBinaryContent(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}
	contentType := http.DetectContentType(sample)
	if strings.HasPrefix(contentType, "text/") || strings.Contains(contentType, "json") || strings.Contains(contentType, "xml") {
		return false
	}
	for _, b := range sample {
		if b == 0 {
			return true
		}
	}
	return false
}
