package rollout

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(filenameTimeFormat, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return ts.UTC()
}

func writeSessionFile(t *testing.T, home, tsStr, id string, numRecords int) string {
	t.Helper()
	ts := mustTime(t, tsStr)
	meta, err := NewMetaRecord(ts, SessionMeta{ID: id, Cwd: "/work", Originator: "cli", ModelProvider: "anthropic"})
	if err != nil {
		t.Fatalf("NewMetaRecord: %v", err)
	}
	var history []Record
	for i := 0; i < numRecords; i++ {
		r, err := NewRecord(ts, RecordUserMessage, map[string]any{"index": i})
		if err != nil {
			t.Fatalf("NewRecord: %v", err)
		}
		history = append(history, r)
	}
	path := Path(home, ts, id, false)
	if err := Save(path, meta, history); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return path
}

func TestSave_CreatesFileUnderSessionsYearMonthDay(t *testing.T) {
	home := t.TempDir()
	path := writeSessionFile(t, home, "2025-04-01T10-30-00", "id-1", 2)

	want := filepath.Join(home, "sessions", "2025", "04", "01", "rollout-2025-04-01T10-30-00-id-1.jsonl")
	if path != want {
		t.Fatalf("expected path %q, got %q", want, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}

func TestSave_RejectsNonMetaFirstRecord(t *testing.T) {
	home := t.TempDir()
	notMeta := Record{Timestamp: time.Now().UTC(), Type: RecordUserMessage, Payload: json.RawMessage(`{}`)}
	err := Save(filepath.Join(home, "x.jsonl"), notMeta, nil)
	if err == nil {
		t.Fatal("expected an error when meta record is not session_meta")
	}
}

func TestSave_IsIdempotentByteForByte(t *testing.T) {
	home := t.TempDir()
	ts := mustTime(t, "2025-04-01T10-30-00")
	meta, _ := NewMetaRecord(ts, SessionMeta{ID: "id-1", Cwd: "/work"})
	r1, _ := NewRecord(ts, RecordUserMessage, map[string]any{"text": "hi"})
	history := []Record{r1}
	path := Path(home, ts, "id-1", false)

	if err := Save(path, meta, history); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if err := Save(path, meta, history); err != nil {
		t.Fatalf("Save (again): %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(first) != string(second) {
		t.Fatalf("expected byte-identical replays, got:\n%s\n---\n%s", first, second)
	}
}

func TestLoad_RoundTripsMetaAndHistory(t *testing.T) {
	home := t.TempDir()
	ts := mustTime(t, "2025-04-01T10-30-00")
	wantMeta := SessionMeta{ID: "id-1", Cwd: "/work", Originator: "cli", ModelProvider: "anthropic"}
	meta, _ := NewMetaRecord(ts, wantMeta)
	r1, _ := NewRecord(ts, RecordUserMessage, map[string]any{"text": "hi"})
	r2, _ := NewRecord(ts, RecordToolCall, map[string]any{"name": "read"})
	path := Path(home, ts, "id-1", false)
	if err := Save(path, meta, []Record{r1, r2}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loadedMeta, history, warnings, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	gotMeta, err := loadedMeta.DecodeMeta()
	if err != nil {
		t.Fatalf("DecodeMeta: %v", err)
	}
	if gotMeta != wantMeta {
		t.Fatalf("expected meta %+v, got %+v", wantMeta, gotMeta)
	}
	if len(history) != 2 || history[0].Type != RecordUserMessage || history[1].Type != RecordToolCall {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestLoad_SkipsMalformedLinesWithWarning(t *testing.T) {
	home := t.TempDir()
	ts := mustTime(t, "2025-04-01T10-30-00")
	meta, _ := NewMetaRecord(ts, SessionMeta{ID: "id-1"})
	path := Path(home, ts, "id-1", false)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	metaLine, _ := json.Marshal(meta)
	content := string(metaLine) + "\n" + "{not valid json" + "\n" + `{"timestamp":"2025-04-01T10:30:00Z","type":"user_message","payload":{}}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, history, warnings, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", warnings)
	}
	if len(history) != 1 {
		t.Fatalf("expected the one valid record to still load, got %d", len(history))
	}
}

func TestLoad_MissingMetaFails(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "bad.jsonl")
	if err := os.WriteFile(path, []byte(`{"timestamp":"2025-04-01T10:30:00Z","type":"user_message","payload":{}}`+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, _, _, err := Load(path)
	if err == nil {
		t.Fatal("expected an error when line 1 is not session_meta")
	}
}

func TestList_NewestFirst(t *testing.T) {
	home := t.TempDir()
	writeSessionFile(t, home, "2025-01-01T12-00-00", "aaaa", 3)
	writeSessionFile(t, home, "2025-01-02T12-00-00", "bbbb", 3)
	writeSessionFile(t, home, "2025-01-03T12-00-00", "cccc", 3)

	page, err := List(home, 10, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(page.Items))
	}
	if page.Items[0].ID != "cccc" || page.Items[1].ID != "bbbb" || page.Items[2].ID != "aaaa" {
		t.Fatalf("expected newest-first ordering, got %v %v %v", page.Items[0].ID, page.Items[1].ID, page.Items[2].ID)
	}
	for _, it := range page.Items {
		if len(it.Head) == 0 || len(it.Head) > 5 {
			t.Fatalf("expected a 1-5 line head, got %d lines", len(it.Head))
		}
	}
}

func TestList_PaginatesWithCursor(t *testing.T) {
	home := t.TempDir()
	for i := 1; i <= 5; i++ {
		writeSessionFile(t, home, mustDayString(i), idForDay(i), 1)
	}

	page1, err := List(home, 2, "")
	if err != nil {
		t.Fatalf("List page1: %v", err)
	}
	if len(page1.Items) != 2 || page1.Items[0].ID != idForDay(5) || page1.Items[1].ID != idForDay(4) {
		t.Fatalf("unexpected page1: %+v", page1.Items)
	}
	if page1.NextCursor == "" {
		t.Fatal("expected a non-empty cursor for page1")
	}

	page2, err := List(home, 2, page1.NextCursor)
	if err != nil {
		t.Fatalf("List page2: %v", err)
	}
	if len(page2.Items) != 2 || page2.Items[0].ID != idForDay(3) || page2.Items[1].ID != idForDay(2) {
		t.Fatalf("unexpected page2: %+v", page2.Items)
	}

	page3, err := List(home, 2, page2.NextCursor)
	if err != nil {
		t.Fatalf("List page3: %v", err)
	}
	if len(page3.Items) != 1 || page3.Items[0].ID != idForDay(1) {
		t.Fatalf("unexpected page3: %+v", page3.Items)
	}
	if page3.NextCursor != "" {
		t.Fatal("expected an empty cursor once the last page is reached")
	}
}

func mustDayString(day int) string {
	return time.Date(2025, 3, time.Month(day), 9, 0, 0, 0, time.UTC).Format(filenameTimeFormat)
}

func idForDay(day int) string {
	return "session-" + string(rune('0'+day))
}

func TestList_StableOrderingForSameTimestamp(t *testing.T) {
	home := t.TempDir()
	writeSessionFile(t, home, "2025-07-01T00-00-00", "u1", 0)
	writeSessionFile(t, home, "2025-07-01T00-00-00", "u2", 0)
	writeSessionFile(t, home, "2025-07-01T00-00-00", "u3", 0)

	page, err := List(home, 10, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 3 || page.Items[0].ID != "u3" || page.Items[1].ID != "u2" || page.Items[2].ID != "u1" {
		t.Fatalf("expected id-desc tie-break, got %v", page.Items)
	}
}

func TestArchiveAndUnarchive_MoveBetweenTrees(t *testing.T) {
	home := t.TempDir()
	path := writeSessionFile(t, home, "2025-04-01T10-30-00", "id-1", 1)

	if err := Archive(home, "id-1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected the original path to no longer exist after archiving")
	}
	archivedPath, archived, err := FindByID(home, "id-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !archived {
		t.Fatal("expected the session to be found under the archived tree")
	}

	if err := Unarchive(home, "id-1"); err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	restoredPath, archived, err := FindByID(home, "id-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if archived {
		t.Fatal("expected the session to be back under sessions/ after unarchiving")
	}
	if restoredPath != path {
		t.Fatalf("expected the restored path to match the original, got %q vs %q", restoredPath, path)
	}
	_ = archivedPath
}

func TestArchive_UnknownIDFails(t *testing.T) {
	home := t.TempDir()
	if err := Archive(home, "does-not-exist"); err == nil {
		t.Fatal("expected an error archiving an unknown session id")
	}
}

func TestArchive_AlreadyArchivedFails(t *testing.T) {
	home := t.TempDir()
	writeSessionFile(t, home, "2025-04-01T10-30-00", "id-1", 1)
	if err := Archive(home, "id-1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if err := Archive(home, "id-1"); err == nil {
		t.Fatal("expected archiving an already-archived session to fail")
	}
}
