package toolkit

import "testing"

func TestFindMatch_Exact(t *testing.T) {
	content := "line one\nline two\nline three\n"
	m, err := FindMatch(content, "line two")
	if err != nil {
		t.Fatalf("FindMatch: %v", err)
	}
	if m.Level != MatchExact {
		t.Fatalf("expected MatchExact, got %s", m.Level)
	}
	if content[m.Start:m.End] != "line two" {
		t.Fatalf("span %d:%d = %q", m.Start, m.End, content[m.Start:m.End])
	}
}

func TestFindMatch_ExactAmbiguousFails(t *testing.T) {
	content := "x\ny\nx\n"
	if _, err := FindMatch(content, "x"); err == nil {
		t.Fatal("expected ambiguity error for a search string matching twice")
	}
}

func TestFindMatch_EmptySearchFails(t *testing.T) {
	if _, err := FindMatch("content", ""); err == nil {
		t.Fatal("expected error for empty old_text")
	}
}

func TestFindMatch_WhitespaceNormalized(t *testing.T) {
	content := "func foo() {\n    return   1\n}\n"
	search := "func foo() {\nreturn 1\n}"
	m, err := FindMatch(content, search)
	if err != nil {
		t.Fatalf("FindMatch: %v", err)
	}
	if m.Level != MatchWhitespaceNormalized {
		t.Fatalf("expected MatchWhitespaceNormalized, got %s", m.Level)
	}
}

func TestFindMatch_LineTrimmed(t *testing.T) {
	content := "if true {\n        doThing()\n    }\n"
	search := "if true {\ndoThing()\n}"
	m, err := FindMatch(content, search)
	if err != nil {
		t.Fatalf("FindMatch: %v", err)
	}
	if m.Level != MatchLineTrimmed {
		t.Fatalf("expected MatchLineTrimmed, got %s", m.Level)
	}
}

func TestFindMatch_UniqueSubstringCaseInsensitive(t *testing.T) {
	content := "The Quick Brown Fox"
	m, err := FindMatch(content, "quick brown")
	if err != nil {
		t.Fatalf("FindMatch: %v", err)
	}
	if m.Level != MatchUniqueSubstring {
		t.Fatalf("expected MatchUniqueSubstring, got %s", m.Level)
	}
	if m.Original != "Quick Brown" {
		t.Fatalf("expected Original to preserve source casing, got %q", m.Original)
	}
}

func TestFindMatch_Elided(t *testing.T) {
	content := "func foo() {\n    setup()\n    middleStuffThatChanges()\n    teardown()\n}\n"
	search := "setup()\n...\nteardown()"
	m, err := FindMatch(content, search)
	if err != nil {
		t.Fatalf("FindMatch: %v", err)
	}
	if m.Level != MatchElided {
		t.Fatalf("expected MatchElided, got %s", m.Level)
	}
}

func TestFindMatch_ElidedAmbiguousFails(t *testing.T) {
	content := "a...b\na...b\n"
	if _, err := FindMatch(content, "a...b"); err == nil {
		t.Fatal("expected ambiguity error for an elided pattern matching twice")
	}
}

func TestFindMatch_NoMatchFails(t *testing.T) {
	if _, err := FindMatch("hello world", "goodbye"); err == nil {
		t.Fatal("expected error when old_text is not present anywhere")
	}
}

func TestApplyMatch_ReplacesMatchedSpan(t *testing.T) {
	content := "before MIDDLE after"
	m, err := FindMatch(content, "MIDDLE")
	if err != nil {
		t.Fatalf("FindMatch: %v", err)
	}
	got := ApplyMatch(content, m, "center")
	want := "before center after"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
