package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/turnforge/agentcore/internal/protocol"
	"github.com/turnforge/agentcore/internal/udiff"
)

// ApplyPatchTool implements the built-in "apply_patch" tool: a single
// unified diff touching one or more files, applied hunk-by-hunk with
// warnings collected for hunks that don't match rather than failing the
// whole patch. Classified Exclusive, not Mutating: a multi-file patch must
// not interleave with any other tool call while it is being applied,
// grounded on the teacher's UnifiedDiffTool.
type ApplyPatchTool struct {
	BaseTool
}

func NewApplyPatchTool() *ApplyPatchTool { return &ApplyPatchTool{} }

type applyPatchArgs struct {
	Diff string `json:"diff"`
}

func (t *ApplyPatchTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name:        "apply_patch",
		Description: "Apply a unified diff to one or more files. Hunks that fail to match are skipped and reported as warnings rather than aborting the whole patch.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"diff": map[string]interface{}{"type": "string", "description": "Unified diff text (--- a/path, +++ b/path, @@ ... @@ hunks)"},
			},
			"required":             []string{"diff"},
			"additionalProperties": false,
		},
	}
}

func (t *ApplyPatchTool) ConcurrencySafety() ConcurrencySafety { return Exclusive }
func (t *ApplyPatchTool) DefaultApproval() ApprovalDefault     { return ApprovalOnRequest }

func (t *ApplyPatchTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	var a applyPatchArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ErrorResult(call, NewToolError(ErrInvalidInput, err.Error())), nil
	}
	if a.Diff == "" {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "diff is required")), nil
	}

	fileDiffs, err := udiff.Parse(a.Diff)
	if err != nil {
		return ErrorResult(call, NewToolErrorf(ErrInvalidInput, "failed to parse diff: %v", err)), nil
	}
	if len(fileDiffs) == 0 {
		return TextResult(call, "No changes to apply"), nil
	}

	var sb strings.Builder
	var allWarnings []string
	var diffs []protocol.DiffData

	for _, fd := range fileDiffs {
		data, err := os.ReadFile(fd.Path)
		if err != nil {
			allWarnings = append(allWarnings, fmt.Sprintf("%s: %v", fd.Path, err))
			continue
		}
		content := string(data)

		result := udiff.ApplyWithWarnings(content, fd.Hunks)
		if len(result.Warnings) > 0 {
			for _, w := range result.Warnings {
				allWarnings = append(allWarnings, fmt.Sprintf("%s: %s", fd.Path, w))
			}
		}

		if result.Content == content {
			fmt.Fprintf(&sb, "No changes for %s\n", fd.Path)
			continue
		}

		if err := writeFileAtomic(fd.Path, result.Content); err != nil {
			allWarnings = append(allWarnings, fmt.Sprintf("%s: %v", fd.Path, err))
			continue
		}

		fmt.Fprintf(&sb, "Applied changes to %s\n", fd.Path)
		diffs = append(diffs, protocol.DiffData{Path: fd.Path, OldText: content, NewText: result.Content})
	}

	if len(allWarnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, w := range allWarnings {
			sb.WriteString("- " + w + "\n")
		}
	}

	return protocol.ToolResult{
		ID:      call.ID,
		Name:    call.Name,
		Content: sb.String(),
		Diffs:   diffs,
		IsError: len(diffs) == 0 && len(allWarnings) > 0,
	}, nil
}

func writeFileAtomic(path, content string) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
