package rollout

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/turnforge/agentcore/internal/config"
)

// ErrMissingMeta is returned by Load when the first line is not a valid
// session_meta record.
var ErrMissingMeta = errors.New("rollout: first line is not a valid session_meta record")

// filenameTimeFormat mirrors the original implementation's
// "[year]-[month]-[day]T[hour]-[minute]-[second]" format, colon-free so the
// timestamp is filesystem-safe.
const filenameTimeFormat = "2006-01-02T15-04-05"

// Filename builds the "rollout-<timestamp>-<id>.jsonl" name for a session
// started at ts.
func Filename(ts time.Time, id string) string {
	return fmt.Sprintf("rollout-%s-%s.jsonl", ts.UTC().Format(filenameTimeFormat), id)
}

// DayDir returns the sessions/YYYY/MM/DD directory a session started at ts
// belongs under, relative to home.
func DayDir(home string, ts time.Time) string {
	utc := ts.UTC()
	return filepath.Join(home, "sessions",
		fmt.Sprintf("%04d", utc.Year()), fmt.Sprintf("%02d", utc.Month()), fmt.Sprintf("%02d", utc.Day()))
}

// Path returns the full rollout file path for a session, under sessions/ (or
// sessions/archived/ when archived is true).
func Path(home string, ts time.Time, id string, archived bool) string {
	dir := DayDir(home, ts)
	if archived {
		dir = filepath.Join(home, "sessions", "archived",
			fmt.Sprintf("%04d", ts.UTC().Year()), fmt.Sprintf("%02d", ts.UTC().Month()), fmt.Sprintf("%02d", ts.UTC().Day()))
	}
	return filepath.Join(dir, Filename(ts, id))
}

// GetDataDir returns the agentcore home directory ("~/.agentcore" or
// $AGENTCORE_HOME) rollout files live under, so sessions/ sits alongside
// config.toml, skills/, plugins/, and rules/ per spec §6's single-root
// layout rather than a separate XDG data directory.
func GetDataDir() (string, error) {
	home, err := config.HomeDir()
	if err != nil {
		return "", fmt.Errorf("rollout: resolve home directory: %w", err)
	}
	return home, nil
}

// Save writes meta followed by history to path atomically (temp file in the
// same directory, then rename), per spec §4.7. Save is idempotent: given an
// identical meta and history, the written bytes are identical on every call;
// only the filesystem's own mtime for the file changes across repeated
// saves.
func Save(path string, meta Record, history []Record) error {
	if meta.Type != RecordSessionMeta {
		return fmt.Errorf("rollout: Save requires a session_meta record as meta, got %q", meta.Type)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("rollout: create directory: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("rollout: encode session_meta: %w", err)
	}
	for _, r := range history {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("rollout: encode record: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".rollout-*.tmp")
	if err != nil {
		return fmt.Errorf("rollout: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("rollout: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rollout: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rollout: rename temp file into place: %w", err)
	}
	return nil
}

// Load strictly parses line 1 as a session_meta record, then best-effort
// parses each subsequent line; malformed lines are skipped and reported as
// warnings rather than aborting the load, per spec §4.7.
func Load(path string) (meta Record, history []Record, warnings []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, nil, nil, fmt.Errorf("rollout: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return Record{}, nil, nil, ErrMissingMeta
	}
	if err := json.Unmarshal(scanner.Bytes(), &meta); err != nil || meta.Type != RecordSessionMeta {
		return Record{}, nil, nil, ErrMissingMeta
	}

	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: %v", lineNo, err))
			continue
		}
		history = append(history, r)
	}
	if err := scanner.Err(); err != nil {
		return Record{}, nil, nil, fmt.Errorf("rollout: scan %s: %w", path, err)
	}

	return meta, history, warnings, nil
}

// ParseFilename extracts the timestamp and session id encoded in a rollout
// filename ("rollout-<timestamp>-<id>.jsonl"), used by List's ordering and
// by FindByID's lookup without needing to open every file.
func ParseFilename(name string) (ts time.Time, id string, ok bool) {
	name = strings.TrimSuffix(name, ".jsonl")
	name = strings.TrimPrefix(name, "rollout-")
	// "<timestamp>-<id>" where timestamp is fixed-width
	// "2006-01-02T15-04-05" (19 chars) and id is everything after the next
	// hyphen.
	const tsLen = len(filenameTimeFormat)
	if len(name) <= tsLen+1 {
		return time.Time{}, "", false
	}
	tsPart := name[:tsLen]
	rest := name[tsLen:]
	if !strings.HasPrefix(rest, "-") {
		return time.Time{}, "", false
	}
	id = rest[1:]
	if id == "" {
		return time.Time{}, "", false
	}
	parsed, err := time.ParseInLocation(filenameTimeFormat, tsPart, time.UTC)
	if err != nil {
		return time.Time{}, "", false
	}
	return parsed, id, true
}
