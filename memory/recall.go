package memory

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// recallLimit caps how many memories Retrieve injects into a prompt.
	recallLimit = 10

	// recallBudget is the total characters Retrieve spends on memory text.
	recallBudget = 2000
)

// FormatMemories formats records into a prompt-ready block, splitting the
// character budget evenly between them.
func FormatMemories(records []Record) string {
	if len(records) == 0 {
		return ""
	}

	var parts []string
	parts = append(parts, "=== RELEVANT MEMORIES ===\n")

	maxLength := recallBudget / len(records)
	if maxLength < 100 {
		maxLength = 100 // Minimum reasonable length
	}

	for i, rec := range records {
		parts = append(parts, fmt.Sprintf("%d. %s\n", i+1, truncate(rec.Text, maxLength)))
	}

	return strings.Join(parts, "\n")
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return cutRunes(s, maxLen-3) + "..."
}

// cutRunes returns the longest prefix of s of at most n bytes that does not
// split a UTF-8 sequence.
func cutRunes(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
