package toolkit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/turnforge/agentcore/internal/protocol"
)

func TestEditTool_ReplacesUniqueText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("hello world\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tool := NewEditTool()
	args, _ := json.Marshal(editArgs{Path: path, OldText: "world", NewText: "there"})
	result, err := tool.Execute(context.Background(), protocol.ToolCall{ID: "1", Name: "edit", Arguments: args})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello there\n" {
		t.Fatalf("got %q", got)
	}
	if len(result.Diffs) != 1 || result.Diffs[0].Path != path {
		t.Fatalf("expected one diff for %s, got %+v", path, result.Diffs)
	}
}

func TestEditTool_MissingFileFails(t *testing.T) {
	tool := NewEditTool()
	args, _ := json.Marshal(editArgs{Path: "/nonexistent/path/file.txt", OldText: "a", NewText: "b"})
	result, err := tool.Execute(context.Background(), protocol.ToolCall{ID: "1", Name: "edit", Arguments: args})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for a missing file")
	}
}

func TestEditTool_AmbiguousOldTextFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("dup\ndup\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tool := NewEditTool()
	args, _ := json.Marshal(editArgs{Path: path, OldText: "dup", NewText: "x"})
	result, err := tool.Execute(context.Background(), protocol.ToolCall{ID: "1", Name: "edit", Arguments: args})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for ambiguous old_text")
	}
}

func TestEditTool_ElidedTokenMatchesAcrossLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	content := "func foo() {\n    setup()\n    doStuff()\n    teardown()\n}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tool := NewEditTool()
	args, _ := json.Marshal(editArgs{
		Path:    path,
		OldText: "setup()\n<<<elided>>>\nteardown()",
		NewText: "setup()\nteardown()",
	})
	result, err := tool.Execute(context.Background(), protocol.ToolCall{ID: "1", Name: "edit", Arguments: args})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(got), "doStuff") {
		t.Fatalf("expected the elided middle section to be removed, got %q", got)
	}
}

func TestEditTool_MissingOldTextFailsValidation(t *testing.T) {
	tool := NewEditTool()
	args, _ := json.Marshal(editArgs{Path: "/tmp/whatever.txt", NewText: "x"})
	result, err := tool.Execute(context.Background(), protocol.ToolCall{ID: "1", Name: "edit", Arguments: args})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing old_text")
	}
}
