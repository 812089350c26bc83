package approval

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckDenyRead_DirectOverlapDenied(t *testing.T) {
	dir := t.TempDir()
	secrets := filepath.Join(dir, "secrets")
	if err := os.Mkdir(secrets, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	target := filepath.Join(secrets, "token")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	err := CheckDenyRead(target, []string{secrets}, false)
	if err == nil {
		t.Fatal("expected access denied for a path directly under a deny-read path")
	}
}

func TestCheckDenyRead_TraversalStillDenied(t *testing.T) {
	dir := t.TempDir()
	secrets := filepath.Join(dir, "secrets")
	if err := os.Mkdir(secrets, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secrets, "token"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// "secrets/../secrets/token" normalizes right back under the deny path.
	traversal := filepath.Join(secrets, "..", "secrets", "token")
	if err := CheckDenyRead(traversal, []string{secrets}, false); err == nil {
		t.Fatal("expected traversal through a deny-read path to still be denied")
	}
}

func TestCheckDenyRead_UnrelatedPathAllowed(t *testing.T) {
	dir := t.TempDir()
	secrets := filepath.Join(dir, "secrets")
	other := filepath.Join(dir, "other")
	if err := os.Mkdir(other, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := CheckDenyRead(other, []string{secrets}, false); err != nil {
		t.Fatalf("expected unrelated path to be allowed, got %v", err)
	}
}

func TestCheckDenyRead_SearchRootContainingDenyPathIsDenied(t *testing.T) {
	dir := t.TempDir()
	secrets := filepath.Join(dir, "secrets")
	if err := os.Mkdir(secrets, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	// dir contains secrets, so a search rooted at dir must be denied too.
	if err := CheckDenyRead(dir, []string{secrets}, true); err == nil {
		t.Fatal("expected a search root containing a deny path to be denied")
	}
}

func TestCheckDenyRead_NonSearchRootContainingDenyPathIsAllowed(t *testing.T) {
	dir := t.TempDir()
	secrets := filepath.Join(dir, "secrets")
	if err := os.Mkdir(secrets, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	// Not a search root (e.g. a single-file read of dir itself would fail
	// for other reasons, but deny-read specifically shouldn't reject a
	// non-search-root just for containing a deny path).
	if err := CheckDenyRead(dir, []string{secrets}, false); err != nil {
		t.Fatalf("expected containment-only check to be skipped for non-search roots, got %v", err)
	}
}
