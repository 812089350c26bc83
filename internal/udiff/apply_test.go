package udiff

import "testing"

func TestApply_SimpleReplacement(t *testing.T) {
	content := "line one\nline two\nline three"
	diff := `--- a/f
+++ b/f
@@ -1,3 +1,3 @@
 line one
-line two
+line TWO
 line three
`
	files, err := Parse(diff)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := Apply(content, files[0].Hunks)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := "line one\nline TWO\nline three"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApply_FailingHunkReturnsError(t *testing.T) {
	content := "completely different content"
	diff := `--- a/f
+++ b/f
@@ -1,1 +1,1 @@
-line that does not exist
+replacement
`
	files, err := Parse(diff)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Apply(content, files[0].Hunks); err == nil {
		t.Fatal("expected an error when the hunk's context cannot be found")
	}
}

func TestApplyWithWarnings_CollectsFailuresAndKeepsSuccesses(t *testing.T) {
	content := "alpha\nbeta\ngamma"
	diff := `--- a/f
+++ b/f
@@ -1,1 +1,1 @@
-alpha
+ALPHA
@@ -1,1 +1,1 @@
-nonexistent line
+replacement
`
	files, err := Parse(diff)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	result := ApplyWithWarnings(content, files[0].Hunks)
	if len(result.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(result.Warnings), result.Warnings)
	}
	if result.Content == content {
		t.Fatal("expected the successful hunk to still be applied")
	}
}

func TestApplyFileDiffs_AppliesAcrossFiles(t *testing.T) {
	files := map[string]string{
		"a.go": "package a\nvar X = 1\n",
		"b.go": "package b\nvar Y = 2\n",
	}
	diff := `--- a/a.go
+++ b/a.go
@@ -1,2 +1,2 @@
 package a
-var X = 1
+var X = 100
`
	diffs, err := Parse(diff)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	result, err := ApplyFileDiffs(files, diffs)
	if err != nil {
		t.Fatalf("ApplyFileDiffs: %v", err)
	}
	if result["a.go"] == files["a.go"] {
		t.Fatal("expected a.go to be modified")
	}
	if result["b.go"] != files["b.go"] {
		t.Fatal("expected b.go to remain untouched")
	}
}

func TestApplyFileDiffs_MissingFileErrors(t *testing.T) {
	files := map[string]string{"a.go": "content"}
	diff := `--- a/missing.go
+++ b/missing.go
@@ -1,1 +1,1 @@
-content
+new content
`
	diffs, err := Parse(diff)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := ApplyFileDiffs(files, diffs); err == nil {
		t.Fatal("expected error when a diff targets a file not present in the map")
	}
}
