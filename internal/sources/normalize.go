package sources

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reRuleLines  = regexp.MustCompile(`(?m)^\s*[_\-=~*.]{3,}\s*$`)
)

// invisible formatting runes that chat clients sprinkle into messages
var invisible = strings.NewReplacer(
	"\u200b", "", // zero width space
	"\u200c", "", // zero width non-joiner
	"\u200e", "", // left-to-right mark
	"\u200f", "", // right-to-left mark
	"\u2066", "", "\u2067", "", "\u2068", "", "\u2069", "",
	"\ufeff", "",
	"\u00a0", " ",
)

// CleanText collapses noisy whitespace while keeping line breaks, so that
// length checks and content hashes see the same text regardless of client.
func CleanText(s string) string {
	if s == "" {
		return s
	}
	s = invisible.Replace(s)
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = reRuleLines.ReplaceAllString(s, "")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	s = strings.Join(lines, "\n")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
