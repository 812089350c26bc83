package udiff

import (
	"fmt"
	"strings"
)

// Parse splits a unified diff (possibly spanning several files) into one
// FileDiff per "--- a/<path>" / "+++ b/<path>" pair. Each "@@ ... @@" hunk
// header's text after the second "@@" is kept as Hunk.Context, since models
// often reuse it to carry an enclosing-function anchor rather than a
// conventional line-number range.
func Parse(diffText string) ([]FileDiff, error) {
	lines := strings.Split(diffText, "\n")
	// A final newline ends the last line; it does not start an empty one.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	var files []FileDiff
	var cur *FileDiff
	var curHunk *Hunk

	flushHunk := func() {
		if cur != nil && curHunk != nil {
			cur.Hunks = append(cur.Hunks, *curHunk)
			curHunk = nil
		}
	}
	flushFile := func() {
		flushHunk()
		if cur != nil {
			files = append(files, *cur)
			cur = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		switch {
		case strings.HasPrefix(line, "--- "):
			// Starts a new file; the path is finalized on the following "+++" line.
			continue

		case strings.HasPrefix(line, "+++ "):
			flushFile()
			path := strings.TrimPrefix(line, "+++ ")
			path = strings.TrimPrefix(path, "b/")
			path = strings.TrimSpace(path)
			if path == "" || path == "/dev/null" {
				return nil, fmt.Errorf("line %d: missing target path in %q", i+1, line)
			}
			cur = &FileDiff{Path: path}

		case strings.HasPrefix(line, "@@"):
			if cur == nil {
				return nil, fmt.Errorf("line %d: hunk header before any file header", i+1)
			}
			flushHunk()
			curHunk = &Hunk{Context: hunkContext(line)}

		case cur == nil:
			// Preamble (e.g. "diff --git ...", "index ...") before any
			// recognized header; ignore.
			continue

		case curHunk == nil:
			// Stray line between file header and first hunk; ignore.
			continue

		case line == "...":
			curHunk.Lines = append(curHunk.Lines, Line{Type: Elision, Content: line})

		case strings.HasPrefix(line, "+"):
			curHunk.Lines = append(curHunk.Lines, Line{Type: Add, Content: line[1:]})

		case strings.HasPrefix(line, "-"):
			curHunk.Lines = append(curHunk.Lines, Line{Type: Remove, Content: line[1:]})

		case strings.HasPrefix(line, " "):
			curHunk.Lines = append(curHunk.Lines, Line{Type: Context, Content: line[1:]})

		case line == "":
			curHunk.Lines = append(curHunk.Lines, Line{Type: Context, Content: ""})

		case strings.HasPrefix(line, "\\"):
			// "\ No newline at end of file" marker; not a content line.
			continue

		default:
			return nil, fmt.Errorf("line %d: unrecognized diff line %q", i+1, line)
		}
	}
	flushFile()

	if len(files) == 0 {
		return nil, fmt.Errorf("no file headers found in diff")
	}
	return files, nil
}

// hunkContext extracts the text following the closing "@@" of a hunk
// header, used as an anchor when resolving elided regions.
func hunkContext(header string) string {
	idx := strings.Index(header, "@@")
	if idx < 0 {
		return ""
	}
	rest := header[idx+2:]
	idx2 := strings.Index(rest, "@@")
	if idx2 < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[idx2+2:])
}
