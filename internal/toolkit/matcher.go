package toolkit

import (
	"fmt"
	"regexp"
	"strings"
)

// MatchLevel records which matching strategy located old_text in the edit
// tool, from the most literal to the most forgiving.
type MatchLevel int

const (
	MatchExact MatchLevel = iota
	MatchLineTrimmed
	MatchWhitespaceNormalized
	MatchElided
	MatchUniqueSubstring
)

func (l MatchLevel) String() string {
	switch l {
	case MatchExact:
		return "exact"
	case MatchWhitespaceNormalized:
		return "whitespace_normalized"
	case MatchLineTrimmed:
		return "line_trimmed"
	case MatchElided:
		return "elided"
	case MatchUniqueSubstring:
		return "unique_substring"
	default:
		return "unknown"
	}
}

// MatchResult is where a search string was located in content.
type MatchResult struct {
	Start, End int
	Original   string // the exact substring of content that matched
	Level      MatchLevel
}

const elidedToken = "..."

// FindMatch locates search within content using progressively more
// forgiving strategies, stopping at the first that produces exactly one
// match. search may contain the literal token "..." to mean "match any
// sequence of characters, including newlines" (the edit tool's <<<elided>>>
// marker is translated to this token before calling FindMatch).
func FindMatch(content, search string) (MatchResult, error) {
	if search == "" {
		return MatchResult{}, fmt.Errorf("old_text must not be empty")
	}

	if strings.Contains(search, elidedToken) {
		return findElidedMatch(content, search)
	}

	if idx := strings.Index(content, search); idx >= 0 {
		if strings.Count(content, search) > 1 {
			return MatchResult{}, fmt.Errorf("old_text matches %d locations; add context to make it unique", strings.Count(content, search))
		}
		return MatchResult{Start: idx, End: idx + len(search), Original: search, Level: MatchExact}, nil
	}

	if m, ok := findLineTrimmed(content, search); ok {
		return m, nil
	}

	if m, ok := findWhitespaceNormalized(content, search); ok {
		return m, nil
	}

	if m, ok := findUniqueSubstring(content, search); ok {
		return m, nil
	}

	return MatchResult{}, fmt.Errorf("no match found for old_text")
}

// ApplyMatch replaces the matched region with replacement.
func ApplyMatch(content string, m MatchResult, replacement string) string {
	return content[:m.Start] + replacement + content[m.End:]
}

var wsRun = regexp.MustCompile(`\s+`)

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(wsRun.ReplaceAllString(s, " "))
}

// findWhitespaceNormalized collapses runs of whitespace on both sides and
// looks for a unique normalized match, then maps the span back onto the
// original content via a best-effort re-scan.
func findWhitespaceNormalized(content, search string) (MatchResult, bool) {
	normSearch := normalizeWhitespace(search)
	if normSearch == "" {
		return MatchResult{}, false
	}

	lines := strings.Split(content, "\n")
	searchLines := strings.Split(search, "\n")
	windowLen := len(searchLines)
	if windowLen == 0 || windowLen > len(lines) {
		return MatchResult{}, false
	}

	var candidates []int // starting line index
	for i := 0; i+windowLen <= len(lines); i++ {
		window := strings.Join(lines[i:i+windowLen], "\n")
		if normalizeWhitespace(window) == normSearch {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) != 1 {
		return MatchResult{}, false
	}

	start := lineOffset(lines, candidates[0])
	window := strings.Join(lines[candidates[0]:candidates[0]+windowLen], "\n")
	return MatchResult{Start: start, End: start + len(window), Original: window, Level: MatchWhitespaceNormalized}, true
}

// findLineTrimmed matches line-by-line after trimming each line's leading
// and trailing whitespace, tolerant of reindentation.
func findLineTrimmed(content, search string) (MatchResult, bool) {
	lines := strings.Split(content, "\n")
	searchLines := strings.Split(search, "\n")
	trimmedSearch := make([]string, len(searchLines))
	for i, l := range searchLines {
		trimmedSearch[i] = strings.TrimSpace(l)
	}
	windowLen := len(searchLines)
	if windowLen == 0 || windowLen > len(lines) {
		return MatchResult{}, false
	}

	var candidates []int
	for i := 0; i+windowLen <= len(lines); i++ {
		match := true
		for k := 0; k < windowLen; k++ {
			if strings.TrimSpace(lines[i+k]) != trimmedSearch[k] {
				match = false
				break
			}
		}
		if match {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) != 1 {
		return MatchResult{}, false
	}

	start := lineOffset(lines, candidates[0])
	window := strings.Join(lines[candidates[0]:candidates[0]+windowLen], "\n")
	return MatchResult{Start: start, End: start + len(window), Original: window, Level: MatchLineTrimmed}, true
}

// findUniqueSubstring is the last-resort fallback: case-insensitive
// containment, only accepted if it locates exactly one occurrence.
func findUniqueSubstring(content, search string) (MatchResult, bool) {
	lowerContent := strings.ToLower(content)
	lowerSearch := strings.ToLower(search)
	first := strings.Index(lowerContent, lowerSearch)
	if first < 0 {
		return MatchResult{}, false
	}
	if strings.Count(lowerContent, lowerSearch) != 1 {
		return MatchResult{}, false
	}
	return MatchResult{Start: first, End: first + len(search), Original: content[first : first+len(search)], Level: MatchUniqueSubstring}, true
}

// findElidedMatch turns each "..." run in search into a non-greedy regex
// wildcard (including newlines) and requires the compiled pattern to match
// exactly once.
func findElidedMatch(content, search string) (MatchResult, error) {
	parts := strings.Split(search, elidedToken)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	pattern := "(?s)" + strings.Join(parts, ".*?")
	re, err := regexp.Compile(pattern)
	if err != nil {
		return MatchResult{}, fmt.Errorf("invalid elided pattern: %w", err)
	}

	locs := re.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return MatchResult{}, fmt.Errorf("no match found for old_text")
	}
	if len(locs) > 1 {
		return MatchResult{}, fmt.Errorf("old_text matches %d locations; add context to make it unique", len(locs))
	}
	loc := locs[0]
	return MatchResult{Start: loc[0], End: loc[1], Original: content[loc[0]:loc[1]], Level: MatchElided}, nil
}

// lineOffset returns the byte offset of the start of lines[idx] within the
// original joined-by-"\n" content.
func lineOffset(lines []string, idx int) int {
	offset := 0
	for i := 0; i < idx; i++ {
		offset += len(lines[i]) + 1 // +1 for the newline
	}
	return offset
}
