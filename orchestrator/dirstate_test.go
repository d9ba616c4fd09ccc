package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTargetDirEmptyMissingDirIsEmpty(t *testing.T) {
	empty, err := targetDirEmpty(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("targetDirEmpty: %v", err)
	}
	if !empty {
		t.Fatal("expected missing dir to be empty")
	}
}

func TestTargetDirEmptyNonEmptyDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "vda.full.data"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	empty, err := targetDirEmpty(dir)
	if err != nil {
		t.Fatalf("targetDirEmpty: %v", err)
	}
	if empty {
		t.Fatal("expected non-empty dir")
	}
}

func TestHasBaseFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "vda.full.data"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !hasBaseFile(dir, "vda") {
		t.Fatal("expected base file for vda")
	}
	if hasBaseFile(dir, "vdb") {
		t.Fatal("did not expect base file for vdb")
	}
}

func TestHasBaseFileRecognizesCopyMode(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "vda.copy.data"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !hasBaseFile(dir, "vda") {
		t.Fatal("expected copy-mode file to count as a base")
	}
}
