package toolkit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/turnforge/agentcore/internal/protocol"
)

// GrepTool implements the built-in "grep"/search tool: ripgrep when
// available, falling back to a Go regexp walk, grounded on the teacher's
// GrepTool.
type GrepTool struct {
	BaseTool
	limits OutputLimits
}

func NewGrepTool(limits OutputLimits) *GrepTool { return &GrepTool{limits: limits} }

type grepArgs struct {
	Pattern    string `json:"pattern"`
	Path       string `json:"path,omitempty"`
	Include    string `json:"include,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

type grepMatch struct {
	FilePath   string
	LineNumber int
	Context    string
}

func (t *GrepTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name:        "grep",
		Description: "Search file contents using RE2 regex patterns. Returns matches with 3 lines of context.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"pattern":     map[string]interface{}{"type": "string", "description": "Regular expression (RE2 syntax)"},
				"path":        map[string]interface{}{"type": "string", "description": "File or directory to search (defaults to cwd)"},
				"include":     map[string]interface{}{"type": "string", "description": "Glob filter, e.g. '*.go'"},
				"max_results": map[string]interface{}{"type": "integer", "description": "Max results (default 100)", "default": 100},
			},
			"required":             []string{"pattern"},
			"additionalProperties": false,
		},
	}
}

func (t *GrepTool) ConcurrencySafety() ConcurrencySafety { return ReadOnly }
func (t *GrepTool) DefaultApproval() ApprovalDefault     { return ApprovalUnlessTrusted }

func (t *GrepTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var a grepArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ErrorResult(call, NewToolError(ErrInvalidInput, err.Error())), nil
	}
	if a.Pattern == "" {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "pattern is required")), nil
	}

	searchPath := a.Path
	if searchPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "cannot get working directory: %v", err)), nil
		}
		searchPath = wd
	}

	maxResults := a.MaxResults
	if maxResults <= 0 {
		maxResults = t.limits.MaxResults
	}

	if _, err := exec.LookPath("rg"); err == nil {
		matches, err := runRipgrep(ctx, a.Pattern, searchPath, a.Include, maxResults)
		if err == nil {
			if len(matches) == 0 {
				return TextResult(call, "No matches found."), nil
			}
			return TextResult(call, formatGrepMatches(matches, len(matches) >= maxResults)), nil
		}
		if ctx.Err() != nil {
			return TextResult(call, "grep timed out after 1 minute; try a more specific pattern or path"), nil
		}
	}

	re, err := regexp.Compile(a.Pattern)
	if err != nil {
		return ErrorResult(call, NewToolErrorf(ErrInvalidInput, "invalid regex: %v", err)), nil
	}
	files, err := collectSearchFiles(searchPath, a.Include)
	if err != nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to collect files: %v", err)), nil
	}

	var matches []grepMatch
	for _, file := range files {
		if ctx.Err() != nil {
			return TextResult(call, "grep timed out after 1 minute; try a more specific pattern or path"), nil
		}
		if len(matches) >= maxResults {
			break
		}
		fm, err := searchFileForMatches(file, re, maxResults-len(matches))
		if err != nil {
			continue
		}
		matches = append(matches, fm...)
	}

	if len(matches) == 0 {
		return TextResult(call, "No matches found."), nil
	}
	return TextResult(call, formatGrepMatches(matches, len(matches) >= maxResults)), nil
}

func runRipgrep(ctx context.Context, pattern, searchPath, include string, maxResults int) ([]grepMatch, error) {
	args := []string{"--json", "--max-count", strconv.Itoa(maxResults), "--context", "3", "--hidden", "--glob", "!.git"}
	if include != "" {
		args = append(args, "--glob", include)
	}
	args = append(args, pattern, searchPath)

	cmd := exec.CommandContext(ctx, "rg", args...)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}
	return parseRipgrepJSON(output, maxResults)
}

type pendingGrepMatch struct {
	filePath   string
	lineNumber int
	matchLine  string
	before     []string
	after      []string
}

func parseRipgrepJSON(output []byte, maxResults int) ([]grepMatch, error) {
	type rgMsg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	type rgData struct {
		Path       struct{ Text string } `json:"path"`
		Lines      struct{ Text string } `json:"lines"`
		LineNumber int                   `json:"line_number"`
	}

	var matches []grepMatch
	var pending *pendingGrepMatch
	var before []string // context lines awaiting the next match
	flush := func() {
		if pending != nil {
			matches = append(matches, buildGrepMatchFromPending(pending))
		}
	}

	for _, line := range strings.Split(string(output), "\n") {
		if line == "" {
			continue
		}
		var msg rgMsg
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		var data rgData
		switch msg.Type {
		case "match":
			flush()
			if len(matches) >= maxResults {
				return matches, nil
			}
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				continue
			}
			pending = &pendingGrepMatch{filePath: data.Path.Text, lineNumber: data.LineNumber, matchLine: strings.TrimSuffix(data.Lines.Text, "\n"), before: before}
			before = nil
		case "context":
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				continue
			}
			contextLine := strings.TrimSuffix(data.Lines.Text, "\n")
			if pending == nil || data.Path.Text != pending.filePath || data.LineNumber > pending.lineNumber+3 {
				before = append(before, contextLine)
			} else {
				pending.after = append(pending.after, contextLine)
			}
		}
	}
	flush()
	return matches, nil
}

func buildGrepMatchFromPending(p *pendingGrepMatch) grepMatch {
	var sb strings.Builder
	startLine := p.lineNumber - len(p.before)
	for i, l := range p.before {
		fmt.Fprintf(&sb, "  %d: %s\n", startLine+i, l)
	}
	fmt.Fprintf(&sb, "> %d: %s\n", p.lineNumber, p.matchLine)
	for i, l := range p.after {
		fmt.Fprintf(&sb, "  %d: %s\n", p.lineNumber+1+i, l)
	}
	return grepMatch{FilePath: p.filePath, LineNumber: p.lineNumber, Context: strings.TrimSuffix(sb.String(), "\n")}
}

func collectSearchFiles(searchPath, include string) ([]string, error) {
	info, err := os.Stat(searchPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{searchPath}, nil
	}

	var files []string
	err = filepath.WalkDir(searchPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if d.IsDir() {
			return nil
		}
		if include != "" {
			if ok, err := doublestar.Match(include, d.Name()); err != nil || !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	sort.Strings(files)
	return files, err
}

func searchFileForMatches(path string, re *regexp.Regexp, maxMatches int) ([]grepMatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, err
	}
	contentType := http.DetectContentType(buf[:n])
	if !strings.HasPrefix(contentType, "text/") && !strings.Contains(contentType, "json") && !strings.Contains(contentType, "xml") {
		return nil, fmt.Errorf("binary file")
	}
	f.Seek(0, 0)

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var matches []grepMatch
	for i, line := range lines {
		if re.MatchString(line) {
			matches = append(matches, grepMatch{FilePath: path, LineNumber: i + 1, Context: buildGrepContext(lines, i, 3)})
			if len(matches) >= maxMatches {
				break
			}
		}
	}
	return matches, nil
}

func buildGrepContext(lines []string, matchIdx, contextLines int) string {
	start := matchIdx - contextLines
	if start < 0 {
		start = 0
	}
	end := matchIdx + contextLines + 1
	if end > len(lines) {
		end = len(lines)
	}
	var sb strings.Builder
	for i := start; i < end; i++ {
		prefix := "  "
		if i == matchIdx {
			prefix = "> "
		}
		fmt.Fprintf(&sb, "%s%d: %s\n", prefix, i+1, lines[i])
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func formatGrepMatches(matches []grepMatch, truncated bool) string {
	var sb strings.Builder
	for i, m := range matches {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		fmt.Fprintf(&sb, "%s:%d\n%s\n", m.FilePath, m.LineNumber, m.Context)
	}
	if truncated {
		sb.WriteString("\n[Results truncated at limit]")
	}
	return sb.String()
}
