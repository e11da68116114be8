package memory

import (
	"testing"
	"unicode/utf8"
)

func TestTruncateLog(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 50, "short"},
		{"abcdef", 3, "abc..."},
		{"héllo", 2, "h..."},
		{"日本語", 4, "日..."},
		{"日本語", 6, "日本..."},
	}

	for _, tt := range tests {
		got := truncateLog(tt.in, tt.maxLen)
		if got != tt.want {
			t.Errorf("truncateLog(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncateLog(%q, %d) produced invalid UTF-8", tt.in, tt.maxLen)
		}
	}
}

func TestCutRunes(t *testing.T) {
	if got := cutRunes("日本", 1); got != "" {
		t.Errorf("expected empty prefix, got %q", got)
	}
	if got := cutRunes("日本", 10); got != "日本" {
		t.Errorf("expected whole string, got %q", got)
	}
}
