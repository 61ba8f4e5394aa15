package pipeline

import "testing"

func TestParseChapterNumber(t *testing.T) {
	cases := []struct {
		filename string
		want     int
		ok       bool
	}{
		{"novel_[12]_远行.txt", 12, true},
		{"novel_7_起点.txt", 7, true},
		{"novel_目录.txt", 0, false},
	}
	for _, c := range cases {
		n, ok := ParseChapterNumber(c.filename)
		if ok != c.ok || n != c.want {
			t.Fatalf("ParseChapterNumber(%q) = (%d, %v), want (%d, %v)", c.filename, n, ok, c.want, c.ok)
		}
	}
}

func TestIsTOCFilename(t *testing.T) {
	if !IsTOCFilename("novel_[12]_目录.txt") {
		t.Fatal("expected 目录 title component to match")
	}
	if IsTOCFilename("novel_[12]_远行.txt") {
		t.Fatal("expected a normal chapter title not to match")
	}
}
