// Package strings holds small text helpers shared by gatekeep's packages.
package strings

import (
	"strings"
)

// DefaultDetailMaxLen bounds provider response bodies quoted in error messages.
const DefaultDetailMaxLen = 200

// MinTruncateLen is the smallest maxLen Truncate honours; anything less
// leaves no room for content plus "...".
const MinTruncateLen = 4

// Truncate collapses all whitespace in s to single spaces and cuts the result
// to maxLen runes, ending in "..." when something was removed.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
