package rollout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FindByID locates a session's rollout file by id, searching sessions/ first
// and then sessions/archived/. Returns the path and whether it was found
// under the archived tree.
func FindByID(home, id string) (path string, archived bool, err error) {
	if p, ok := findUnder(filepath.Join(home, "sessions"), id, true); ok {
		return p, false, nil
	}
	if p, ok := findUnder(filepath.Join(home, "sessions", "archived"), id, false); ok {
		return p, true, nil
	}
	return "", false, fmt.Errorf("rollout: no session found for id %q", id)
}

func findUnder(root, id string, skipArchivedSubtree bool) (string, bool) {
	var found string
	_ = filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if info.IsDir() {
			if skipArchivedSubtree && info.Name() == "archived" && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if found != "" {
			return nil
		}
		if !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		_, fileID, ok := ParseFilename(filepath.Base(path))
		if ok && fileID == id {
			found = path
		}
		return nil
	})
	if found == "" {
		return "", false
	}
	return found, true
}

// Archive moves a session's rollout file from sessions/ into
// sessions/archived/, preserving its YYYY/MM/DD subpath.
func Archive(home, id string) error {
	return move(home, id, false, true)
}

// Unarchive moves a session's rollout file back from sessions/archived/ into
// sessions/.
func Unarchive(home, id string) error {
	return move(home, id, true, false)
}

func move(home, id string, expectArchived, toArchived bool) error {
	path, archived, err := FindByID(home, id)
	if err != nil {
		return err
	}
	if archived != expectArchived {
		if expectArchived {
			return fmt.Errorf("rollout: session %q is not archived", id)
		}
		return fmt.Errorf("rollout: session %q is already archived", id)
	}

	ts, _, ok := ParseFilename(filepath.Base(path))
	if !ok {
		return fmt.Errorf("rollout: cannot parse timestamp from %q", path)
	}
	dest := Path(home, ts, id, toArchived)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("rollout: create destination directory: %w", err)
	}
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("rollout: move %s to %s: %w", path, dest, err)
	}
	return nil
}
