package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/turnforge/agentcore/internal/protocol"
)

// GlobTool implements the built-in "glob" tool: recursive pattern matching
// via doublestar, sorted newest-first, grounded on the teacher's GlobTool.
type GlobTool struct {
	BaseTool
}

func NewGlobTool() *GlobTool { return &GlobTool{} }

type globArgs struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

const maxGlobResults = 200

func (t *GlobTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name:        "glob",
		Description: "Find files by glob pattern (supports ** for recursive matching). Returns paths sorted by modification time, newest first.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"pattern": map[string]interface{}{"type": "string", "description": "Glob pattern, e.g. '**/*.go'"},
				"path":    map[string]interface{}{"type": "string", "description": "Base directory (defaults to cwd)"},
			},
			"required":             []string{"pattern"},
			"additionalProperties": false,
		},
	}
}

func (t *GlobTool) ConcurrencySafety() ConcurrencySafety { return ReadOnly }
func (t *GlobTool) DefaultApproval() ApprovalDefault     { return ApprovalUnlessTrusted }

func (t *GlobTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var a globArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ErrorResult(call, NewToolError(ErrInvalidInput, err.Error())), nil
	}
	if a.Pattern == "" {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "pattern is required")), nil
	}

	base := a.Path
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "cannot get working directory: %v", err)), nil
		}
		base = wd
	}

	fsys := os.DirFS(base)
	matches, err := doublestar.Glob(fsys, a.Pattern)
	if err != nil {
		return ErrorResult(call, NewToolErrorf(ErrInvalidInput, "invalid pattern: %v", err)), nil
	}

	type entry struct {
		path  string
		mtime int64
		isDir bool
		size  int64
	}
	entries := make([]entry, 0, len(matches))
	for _, m := range matches {
		if ctx.Err() != nil {
			return TextResult(call, "glob timed out after 1 minute; try a narrower pattern"), nil
		}
		full := filepath.Join(base, m)
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		entries = append(entries, entry{path: full, mtime: info.ModTime().Unix(), isDir: info.IsDir(), size: info.Size()})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].mtime > entries[j].mtime })

	truncated := false
	if len(entries) > maxGlobResults {
		entries = entries[:maxGlobResults]
		truncated = true
	}

	if len(entries) == 0 {
		return TextResult(call, "No files matched."), nil
	}

	out := ""
	for _, e := range entries {
		kind := "file"
		if e.isDir {
			kind = "dir"
		}
		out += fmt.Sprintf("%s\t%s\t%d bytes\n", e.path, kind, e.size)
	}
	if truncated {
		out += fmt.Sprintf("\n[Results truncated at %d]", maxGlobResults)
	}
	return TextResult(call, out), nil
}
