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

func TestGrepTool_FindsMatchesWithContext(t *testing.T) {
	dir := t.TempDir()
	content := "alpha\nbeta\nneedle here\ndelta\nepsilon\n"
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tool := NewGrepTool(DefaultOutputLimits())
	args, _ := json.Marshal(grepArgs{Pattern: "needle", Path: dir})
	result, err := tool.Execute(context.Background(), protocol.ToolCall{ID: "1", Name: "grep", Arguments: args})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if !strings.Contains(result.Content, "needle here") {
		t.Fatalf("expected match content, got %q", result.Content)
	}
	if !strings.Contains(result.Content, "> 3:") {
		t.Fatalf("expected matched line to be marked with '>', got %q", result.Content)
	}
}

func TestGrepTool_NoMatches(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte("nothing interesting\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tool := NewGrepTool(DefaultOutputLimits())
	args, _ := json.Marshal(grepArgs{Pattern: "zzz_not_present", Path: dir})
	result, err := tool.Execute(context.Background(), protocol.ToolCall{ID: "1", Name: "grep", Arguments: args})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Content != "No matches found." {
		t.Fatalf("expected no-matches message, got %q", result.Content)
	}
}

func TestGrepTool_InvalidRegexFails(t *testing.T) {
	dir := t.TempDir()
	tool := NewGrepTool(DefaultOutputLimits())
	args, _ := json.Marshal(grepArgs{Pattern: "(unclosed", Path: dir})
	result, err := tool.Execute(context.Background(), protocol.ToolCall{ID: "1", Name: "grep", Arguments: args})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for invalid regex")
	}
}

func TestGrepTool_MissingPatternFails(t *testing.T) {
	tool := NewGrepTool(DefaultOutputLimits())
	args, _ := json.Marshal(grepArgs{})
	result, err := tool.Execute(context.Background(), protocol.ToolCall{ID: "1", Name: "grep", Arguments: args})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing pattern")
	}
}

func TestGrepTool_IncludeFilterRestrictsFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "match.go"), []byte("findme\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "match.txt"), []byte("findme\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tool := NewGrepTool(DefaultOutputLimits())
	args, _ := json.Marshal(grepArgs{Pattern: "findme", Path: dir, Include: "*.go"})
	result, err := tool.Execute(context.Background(), protocol.ToolCall{ID: "1", Name: "grep", Arguments: args})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Contains(result.Content, "match.txt") {
		t.Fatalf("expected include filter to exclude match.txt, got %q", result.Content)
	}
	if !strings.Contains(result.Content, "match.go") {
		t.Fatalf("expected match.go to be found, got %q", result.Content)
	}
}

func TestParseRipgrepJSON_BuildsContextAroundMatch(t *testing.T) {
	lines := []string{
		`{"type":"context","data":{"path":{"text":"f.txt"},"lines":{"text":"before\n"},"line_number":1}}`,
		`{"type":"match","data":{"path":{"text":"f.txt"},"lines":{"text":"hit\n"},"line_number":2}}`,
		`{"type":"context","data":{"path":{"text":"f.txt"},"lines":{"text":"after\n"},"line_number":3}}`,
	}
	output := []byte(strings.Join(lines, "\n") + "\n")

	matches, err := parseRipgrepJSON(output, 10)
	if err != nil {
		t.Fatalf("parseRipgrepJSON: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	m := matches[0]
	if m.FilePath != "f.txt" || m.LineNumber != 2 {
		t.Fatalf("unexpected match: %+v", m)
	}
	if !strings.Contains(m.Context, "before") || !strings.Contains(m.Context, "> 2: hit") || !strings.Contains(m.Context, "after") {
		t.Fatalf("expected before/match/after context, got %q", m.Context)
	}
}

func TestParseRipgrepJSON_RespectsMaxResults(t *testing.T) {
	var lines []string
	for i := 0; i < 5; i++ {
		lines = append(lines, `{"type":"match","data":{"path":{"text":"f.txt"},"lines":{"text":"hit\n"},"line_number":1}}`)
	}
	output := []byte(strings.Join(lines, "\n") + "\n")

	matches, err := parseRipgrepJSON(output, 2)
	if err != nil {
		t.Fatalf("parseRipgrepJSON: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected maxResults to cap at 2, got %d", len(matches))
	}
}

func TestBuildGrepContext_ClampsAtFileBoundaries(t *testing.T) {
	lines := []string{"a", "b", "c"}
	got := buildGrepContext(lines, 0, 3)
	if !strings.HasPrefix(got, "> 1: a") {
		t.Fatalf("expected context to start at the matched first line, got %q", got)
	}
}
