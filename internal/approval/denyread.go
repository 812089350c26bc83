package approval

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ErrAccessDenied marks a call rejected by deny-read enforcement, kept
// distinguishable from a rule-evaluator deny so callers can report
// AccessDenied specifically (spec §4.4/§7).
type ErrAccessDenied struct {
	Path      string
	DenyPath  string
}

func (e *ErrAccessDenied) Error() string {
	return fmt.Sprintf("access denied: %s is under deny-read path %s", e.Path, e.DenyPath)
}

// canonicalize normalizes a path (Clean) and resolves it against the
// filesystem (EvalSymlinks) so a deny rule can't be bypassed by a symlink
// or a "../" traversal; if the path doesn't exist yet (e.g. a write target),
// falls back to the cleaned absolute form.
func canonicalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// underOrEqual reports whether child is denyPath itself or lives under it.
func underOrEqual(child, denyPath string) bool {
	if child == denyPath {
		return true
	}
	return strings.HasPrefix(child, denyPath+string(filepath.Separator))
}

// CheckDenyRead rejects path if, after normalization and canonicalization,
// it overlaps any configured deny-read path (spec §4.4's Deny-read
// enforcement, S4). isSearchRoot additionally rejects a containment in
// either direction, since a recursive search rooted above a deny-path would
// still read through it.
func CheckDenyRead(path string, denyPaths []string, isSearchRoot bool) error {
	canon := canonicalize(path)
	for _, raw := range denyPaths {
		denyCanon := canonicalize(raw)
		if underOrEqual(canon, denyCanon) {
			return &ErrAccessDenied{Path: path, DenyPath: raw}
		}
		if isSearchRoot && underOrEqual(denyCanon, canon) {
			return &ErrAccessDenied{Path: path, DenyPath: raw}
		}
	}
	return nil
}
