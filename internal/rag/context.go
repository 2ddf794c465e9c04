package rag

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxContextLength bounds the retrieved text handed to the model, in characters.
const DefaultMaxContextLength = 3000

// AssembleContext joins passages with newlines and keeps at most max characters.
func AssembleContext(passages []string, max int) string {
	if max <= 0 {
		max = DefaultMaxContextLength
	}
	joined := strings.Join(passages, "\n")
	if utf8.RuneCountInString(joined) <= max {
		return joined
	}
	n := 0
	for i := range joined {
		if n == max {
			return joined[:i]
		}
		n++
	}
	return joined
}

// Preview shortens text for display, cutting at a word boundary when one is near.
func Preview(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	cut := AssembleContext([]string{s}, maxLen)
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		return cut[:idx] + "..."
	}
	return cut + "..."
}
