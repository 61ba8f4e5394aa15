package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRun_CreateConfigWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "novelcondenser.json")

	code := run([]string{"--create-config", "--config", path})
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config template at %s: %v", path, err)
	}
}

func TestRun_NoMatchedChaptersFails(t *testing.T) {
	dir := t.TempDir()
	code := run([]string{"--output", dir, "--pattern", filepath.Join(dir, "*.txt")})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}
