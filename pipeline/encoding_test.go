package pipeline

import (
	"testing"

	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestDecodeText_UTF8(t *testing.T) {
	text, name, ok := DecodeText([]byte("第一章 远行\n故事开始了。"))
	if !ok || name != "utf-8" {
		t.Fatalf("got name=%q ok=%v", name, ok)
	}
	if text == "" {
		t.Fatal("expected non-empty decoded text")
	}
}

func TestDecodeText_GBK(t *testing.T) {
	raw, err := simplifiedchinese.GBK.NewEncoder().String("第一章 起点")
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	text, name, ok := DecodeText([]byte(raw))
	if !ok {
		t.Fatal("expected a successful decode")
	}
	if name != "gbk" {
		t.Fatalf("name = %q, want gbk", name)
	}
	if text != "第一章 起点" {
		t.Fatalf("text = %q", text)
	}
}

func TestDecodeText_Latin1Fallback(t *testing.T) {
	// 0xE9 alone is invalid UTF-8, an incomplete GBK sequence, not
	// HZ-GB2312, and an odd-length UTF-16 input; latin-1 never fails.
	text, name, ok := DecodeText([]byte{0xE9})
	if !ok {
		t.Fatal("expected latin-1 to always succeed")
	}
	if name != "latin-1" || text != "é" {
		t.Fatalf("got name=%q text=%q", name, text)
	}
}
