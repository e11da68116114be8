package memory_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/becomeliminal/nim-memory/memory"
)

func TestFormatMemories(t *testing.T) {
	if got := memory.FormatMemories(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}

	got := memory.FormatMemories([]memory.Record{
		{ID: "1", Text: "buy milk"},
		{ID: "2", Text: "buy eggs"},
	})

	if !strings.HasPrefix(got, "=== RELEVANT MEMORIES ===") {
		t.Errorf("missing header: %q", got)
	}
	if !strings.Contains(got, "1. buy milk") || !strings.Contains(got, "2. buy eggs") {
		t.Errorf("missing numbered entries: %q", got)
	}
}

func TestFormatMemories_Truncates(t *testing.T) {
	long := strings.Repeat("x", 5000)
	got := memory.FormatMemories([]memory.Record{{ID: "1", Text: long}})

	if strings.Contains(got, long) {
		t.Fatal("expected long memory to be truncated")
	}
	if !strings.Contains(got, "...") {
		t.Fatal("expected truncation marker")
	}
}

func TestFormatMemories_TruncatesOnRuneBoundary(t *testing.T) {
	// 3-byte runes never line up with the 1997-byte cut
	long := strings.Repeat("日", 2000)
	got := memory.FormatMemories([]memory.Record{{ID: "1", Text: long}})

	if !utf8.ValidString(got) {
		t.Fatalf("expected valid UTF-8, got %q", got)
	}
	if !strings.Contains(got, "日...") {
		t.Fatalf("expected truncation after a whole rune: %q", got)
	}
}
