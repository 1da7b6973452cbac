package logutil

import "strings"

// SanitizeForLog strips newlines and other control characters from
// user-controlled strings before they are written to the process log.
// Reconstructed terminal commands are attacker-influenced, so without this a
// crafted command could inject fake log lines.
func SanitizeForLog(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
