package cache

import (
	"os"
	"testing"
	"time"
)

func TestStore_PutThenLookup(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	hash := Hash([]byte("original chapter text"))
	err = s.Put("ch1.txt", Entry{
		ContentHash:      hash,
		CondensedContent: "shorter text",
		Timestamp:        time.Now(),
		OriginalLength:   22,
		CondensedLength:  12,
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := s.Lookup("ch1.txt", hash)
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got != "shorter text" {
		t.Fatalf("got %q", got)
	}
}

func TestStore_HashMismatchIsMiss(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	s.Put("ch1.txt", Entry{ContentHash: "abc", CondensedContent: "x"})

	if _, ok := s.Lookup("ch1.txt", "different-hash"); ok {
		t.Fatal("expected a cache miss on hash mismatch")
	}
}

func TestStore_MissingSidecarIsMiss(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)

	if _, ok := s.Lookup("never-written.txt", "anything"); ok {
		t.Fatal("expected a cache miss for a missing sidecar")
	}
}

func TestStore_CorruptSidecarIsMiss(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	if err := os.WriteFile(s.path("bad.txt"), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Lookup("bad.txt", "anything"); ok {
		t.Fatal("expected a cache miss for a corrupt sidecar")
	}
}
