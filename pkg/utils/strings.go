package utils

import "strings"

// ContainsAny checks if the text contains any of the given substrings
func ContainsAny(text string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(text, sub) {
			return true
		}
	}
	return false
}

// Truncate shortens s to at most n runes for log output
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
