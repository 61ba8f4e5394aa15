package provider

import (
	"strings"
	"testing"
)

// S6 — a 45,000-char input splits into 3 chunks of 20000/20000/5000.
func TestSplit_45000Chars(t *testing.T) {
	text := strings.Repeat("a", 45000)
	chunks := Split(text)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	wantLens := []int{20000, 20000, 5000}
	for i, want := range wantLens {
		if len(chunks[i]) != want {
			t.Fatalf("chunk %d: got len %d, want %d", i, len(chunks[i]), want)
		}
	}
}

func TestSplit_UnderThreshold(t *testing.T) {
	text := strings.Repeat("a", 100)
	chunks := Split(text)
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("expected a single unchanged chunk, got %v", chunks)
	}
}

func TestJoin_TwoNewlines(t *testing.T) {
	got := Join([]string{"one", "two", "three"})
	want := "one\n\ntwo\n\nthree"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestChunkPrefix(t *testing.T) {
	got := ChunkPrefix("this is chunk {chunk_index} of {total_chunks}", 2, 3)
	if got != "this is chunk 2 of 3" {
		t.Fatalf("got %q", got)
	}
}
