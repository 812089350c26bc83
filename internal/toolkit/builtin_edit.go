package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/turnforge/agentcore/internal/protocol"
)

// EditTool implements the built-in "edit" tool: deterministic old_text/
// new_text replacement with 5-level fuzzy matching, grounded on the
// teacher's edit_file direct-edit mode (including its flock-based
// single-file lock to serialize concurrent edits).
type EditTool struct {
	BaseTool
}

func NewEditTool() *EditTool { return &EditTool{} }

type editArgs struct {
	Path    string `json:"path"`
	OldText string `json:"old_text"`
	NewText string `json:"new_text"`
}

func (t *EditTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name: "edit",
		Description: `Edit a file via deterministic string replacement.
Provide old_text and new_text; old_text must be unique within the file.
The literal token <<<elided>>> in old_text matches any sequence of characters, including newlines.`,
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":     map[string]interface{}{"type": "string", "description": "Path to the file to edit"},
				"old_text": map[string]interface{}{"type": "string", "description": "Exact text to find and replace. May use <<<elided>>> to match any sequence."},
				"new_text": map[string]interface{}{"type": "string", "description": "Text to replace old_text with"},
			},
			"required":             []string{"path", "old_text", "new_text"},
			"additionalProperties": false,
		},
	}
}

func (t *EditTool) ConcurrencySafety() ConcurrencySafety { return Mutating }
func (t *EditTool) DefaultApproval() ApprovalDefault     { return ApprovalOnRequest }

func (t *EditTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	var a editArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ErrorResult(call, NewToolError(ErrInvalidInput, err.Error())), nil
	}
	if a.Path == "" {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "path is required")), nil
	}
	if a.OldText == "" {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "old_text is required")), nil
	}

	// Serialize concurrent edits to the same file via a sidecar lock file;
	// the file's own inode gets replaced by the atomic rename below, so a
	// flock on the target itself wouldn't see later writers.
	lockPath := a.Path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to create lock file: %v", err)), nil
	}
	defer func() {
		lockFile.Close()
		os.Remove(lockPath)
	}()
	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to lock: %v", err)), nil
	}
	defer syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)

	data, err := os.ReadFile(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(call, NewToolError(ErrNotFound, a.Path)), nil
		}
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "read error: %v", err)), nil
	}
	content := string(data)

	search := strings.ReplaceAll(a.OldText, "<<<elided>>>", "...")
	result, err := FindMatch(content, search)
	if err != nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "could not find old_text: %v", err)), nil
	}
	newContent := ApplyMatch(content, result, a.NewText)

	dir := filepath.Dir(a.Path)
	base := filepath.Base(a.Path)
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to create temp file: %v", err)), nil
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(newContent); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to write temp file: %v", err)), nil
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to close temp file: %v", err)), nil
	}
	if err := os.Rename(tmpPath, a.Path); err != nil {
		os.Remove(tmpPath)
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to rename temp file: %v", err)), nil
	}

	startLine := strings.Count(content[:result.Start], "\n") + 1
	msg := fmt.Sprintf("Edited %s (match level: %s)\nReplaced %d bytes with %d bytes",
		a.Path, result.Level, len(result.Original), len(a.NewText))
	if old, new := countLines(result.Original), countLines(a.NewText); old != new {
		msg += fmt.Sprintf("\nLines: %d -> %d", old, new)
	}

	return protocol.ToolResult{
		ID:      call.ID,
		Name:    call.Name,
		Content: msg,
		Diffs: []protocol.DiffData{{
			Path:    a.Path,
			OldText: result.Original,
			NewText: a.NewText,
			Unified: fmt.Sprintf("@@ line %d @@", startLine),
		}},
	}, nil
}
