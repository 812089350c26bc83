package rollout

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Item is one entry in a List page: a listed session's path plus a preview
// head of up to its first five rollout lines.
type Item struct {
	Path      string
	Timestamp time.Time
	ID        string
	Head      []string
}

// Page is one page of List results.
type Page struct {
	Items      []Item
	NextCursor string
}

// List enumerates sessions/YYYY/MM/DD/ (never sessions/archived/), newest
// first, with stable tie-broken ordering keyed by (timestamp desc, id desc),
// per spec §4.7. pageSize <= 0 means "no limit, one page." cursor, when
// non-empty, resumes after the item it names (opaque, returned as
// Page.NextCursor by a prior call).
func List(home string, pageSize int, cursor string) (Page, error) {
	root := filepath.Join(home, "sessions")
	entries, err := scanSessionFiles(root)
	if err != nil {
		return Page{}, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].ID > entries[j].ID
	})

	start := 0
	if cursor != "" {
		afterTS, afterID, ok := decodeCursor(cursor)
		if ok {
			for i, e := range entries {
				if e.Timestamp.Equal(afterTS) && e.ID == afterID {
					start = i + 1
					break
				}
				// entries are sorted desc; once we pass the cursor position
				// (strictly "less than" the cursor key) we've found the cut.
				if e.Timestamp.Before(afterTS) || (e.Timestamp.Equal(afterTS) && e.ID < afterID) {
					start = i
					break
				}
			}
		}
	}

	end := len(entries)
	if pageSize > 0 && start+pageSize < end {
		end = start + pageSize
	}
	if start > len(entries) {
		start = len(entries)
	}

	page := Page{}
	for _, e := range entries[start:end] {
		head, err := readHead(e.Path, 5)
		if err != nil {
			continue
		}
		page.Items = append(page.Items, Item{Path: e.Path, Timestamp: e.Timestamp, ID: e.ID, Head: head})
	}
	if end < len(entries) {
		last := entries[end-1]
		page.NextCursor = encodeCursor(last.Timestamp, last.ID)
	}
	return page, nil
}

type fileEntry struct {
	Path      string
	Timestamp time.Time
	ID        string
}

func scanSessionFiles(root string) ([]fileEntry, error) {
	var entries []fileEntry
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			if info.Name() == "archived" && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		ts, id, ok := ParseFilename(filepath.Base(path))
		if !ok {
			return nil
		}
		entries = append(entries, fileEntry{Path: path, Timestamp: ts, ID: id})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func readHead(path string, maxLines int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines, nil
}

func encodeCursor(ts time.Time, id string) string {
	raw := fmt.Sprintf("%s|%s", ts.UTC().Format(time.RFC3339Nano), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", false
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", false
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", false
	}
	return ts, parts[1], true
}
