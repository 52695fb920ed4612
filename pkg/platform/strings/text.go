package strings

import (
	"strings"

	"golang.org/x/text/cases"
)

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// RuneLen counts runes in s.
func RuneLen(s string) int {
	return len([]rune(s))
}

// JoinLineBreaks replaces isolated line breaks with a space, leaving blank
// lines (paragraph separators) untouched.
//
// Example:
//
//	JoinLineBreaks("first\nline\n\nnext")
//	// Returns: "first line\n\nnext"
func JoinLineBreaks(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	b := []byte(s)
	for i, c := range b {
		if c != '\n' || i == 0 || i == len(b)-1 {
			continue
		}
		if s[i-1] != '\n' && s[i+1] != '\n' {
			b[i] = ' '
		}
	}
	return string(b)
}

// FoldTitle casefolds s and collapses runs of whitespace into single spaces.
func FoldTitle(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
