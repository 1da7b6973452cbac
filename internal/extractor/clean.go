package extractor

import (
	"regexp"
	"strings"
)

// csiRe matches ANSI CSI sequences (cursor movement, coloring, erase).
var csiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// oscRe matches OSC sequences (window title updates etc.), terminated by BEL
// or ST.
var oscRe = regexp.MustCompile(`\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)?`)

// promptPrefixRe strips a leading shell prompt fragment such as
// "user@host:~/dir$ " left over from echoed lines.
var promptPrefixRe = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9._-]+:[^$#]*[$#]\s*`)

// searchPrefixRe strips the reverse-i-search UI prefix, e.g.
// "(reverse-i-search)`ec': ".
var searchPrefixRe = regexp.MustCompile("^\\(reverse-i-search\\)`[^']*':\\s*")

// searchEchoRe recovers the recalled command from reverse-i-search echo
// output; the first capture group is the command text.
var searchEchoRe = regexp.MustCompile("\\(reverse-i-search\\)`[^']*':\\s*([^\r\n\x07]*)")

// StripANSI removes CSI and OSC escape sequences plus any stray ESC bytes.
func StripANSI(s string) string {
	s = csiRe.ReplaceAllString(s, "")
	s = oscRe.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, "\x1b", "")
}

// stripNonPrintable drops control characters, keeping printable runes and
// spaces. Used on completion echo and recalled lines, where the shell mixes
// text with bells and carriage returns.
func stripNonPrintable(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CleanCommand normalizes a finalized command line: escape sequences gone,
// search-UI and prompt prefixes stripped, control characters removed,
// whitespace trimmed. It is idempotent: cleaning already-clean text is a
// no-op, which keeps re-processing safe.
func CleanCommand(s string) string {
	s = StripANSI(s)
	s = stripNonPrintable(s)
	// A redrawn line can carry stacked prompt fragments; strip until stable.
	for {
		next := searchPrefixRe.ReplaceAllString(s, "")
		next = promptPrefixRe.ReplaceAllString(next, "")
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}
