package util

import "strings"

// TruncateRunes cuts s to at most max runes, appending an ellipsis marker
// when anything was removed. Multi-byte text is never cut mid-rune.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// CollapseWhitespace trims s and reduces any whitespace run to one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
